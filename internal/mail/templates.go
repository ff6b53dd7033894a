package mail

import (
	"bytes"
	"html/template"
)

const (
	subjectOTP   = "Verify your DesignGuard account"
	subjectReset = "Reset your DesignGuard password"
)

var otpTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Welcome to DesignGuard</h2>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes. If you did not sign up, ignore this email.</p>
</body>
</html>`))

var resetTmpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Password reset</h2>
  <p>We received a request to reset your password. Click the link below to choose a new one:</p>
  <p><a href="{{.Link}}">Reset password</a></p>
  <p>If you did not request this, you can safely ignore this email.</p>
</body>
</html>`))

func renderOTP(code string, minutes int) (string, error) {
	var buf bytes.Buffer
	err := otpTmpl.Execute(&buf, struct {
		Code    string
		Minutes int
	}{code, minutes})
	return buf.String(), err
}

func renderReset(link string) (string, error) {
	var buf bytes.Buffer
	err := resetTmpl.Execute(&buf, struct{ Link string }{link})
	return buf.String(), err
}
