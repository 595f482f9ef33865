// pantry/email/sendmail.go
package email

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// SendmailTransport pipes each message to a local sendmail-compatible
// binary (sendmail, postfix, msmtp, ...). go-mail adds "-oi -t".
type SendmailTransport struct {
	path string
	args []string
}

// NewSendmailTransport uses path (default /usr/sbin/sendmail) and extra args.
func NewSendmailTransport(path string, args ...string) *SendmailTransport {
	if path == "" {
		path = "/usr/sbin/sendmail"
	}
	return &SendmailTransport{path: path, args: args}
}

// Name implements Transport.
func (t *SendmailTransport) Name() string { return "sendmail" }

// Path returns the binary path for diagnostics.
func (t *SendmailTransport) Path() string { return t.path }

// Send implements Transport. The envelope sender is passed with -f.
func (t *SendmailTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}
	args := append([]string{"-f", msg.envelopeFrom()}, t.args...)
	if err := m.WriteToSendmailWithContext(ctx, t.path, args...); err != nil {
		return fmt.Errorf("email: sendmail %s: %w", t.path, err)
	}
	return nil
}

// Check verifies the binary exists and is executable.
func (t *SendmailTransport) Check(context.Context) error {
	p, err := exec.LookPath(t.path)
	if err != nil {
		return fmt.Errorf("email: sendmail binary: %w", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("email: sendmail binary: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("email: sendmail path %s is a directory", p)
	}
	return nil
}
