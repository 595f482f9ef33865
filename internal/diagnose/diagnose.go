// Package diagnose checks a mail config end to end: the file itself, the
// transport, the sender's SPF record, and optionally a live test message.
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/dalemusser/contactrelay/config"
	"github.com/dalemusser/contactrelay/pantry/email"
	"github.com/mileusna/spf"
)

// Status of one step.
type Status string

const (
	Pass Status = "PASS"
	Fail Status = "FAIL"
	Warn Status = "WARN"
)

// Test message sent by the live step.
const (
	TestSubject = "Test Email from Diagnostics Script"
	TestBody    = "This is a test email to verify SMTP settings."
)

// Step is the outcome of one check.
type Step struct {
	Name   string
	Status Status
	Detail []string
}

// Report collects steps in the order they ran.
type Report struct {
	Steps []Step
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == Fail {
			return true
		}
	}
	return false
}

func (r *Report) add(name string, st Status, detail ...string) {
	r.Steps = append(r.Steps, Step{Name: name, Status: st, Detail: detail})
}

// Print writes one "[STATUS] name" line per step with indented details.
func (r *Report) Print(w io.Writer) {
	for _, s := range r.Steps {
		fmt.Fprintf(w, "[%s] %s\n", s.Status, s.Name)
		for _, d := range s.Detail {
			fmt.Fprintf(w, "       %s\n", d)
		}
	}
	if r.Failed() {
		fmt.Fprintln(w, "\nOne or more checks failed.")
	} else {
		fmt.Fprintln(w, "\nAll required checks passed.")
	}
}

// Checker runs the diagnostics. The function fields default to the real
// implementations and are replaced in tests.
type Checker struct {
	ConfigPath string

	// Send enables the live test message.
	Send bool

	// StrictPerms turns a group/world-readable config into a failure.
	StrictPerms bool

	Build    func(*config.MailConfig) (email.Transport, error)
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
	CheckSPF func(ip net.IP, domain, sender, helo string) spf.Result
	Timeout  time.Duration
}

func (c *Checker) defaults() {
	if c.Build == nil {
		c.Build = email.FromConfig
	}
	if c.LookupIP == nil {
		c.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		}
	}
	if c.CheckSPF == nil {
		c.CheckSPF = spf.CheckHost
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Run executes every step. It stops after the config step when the config
// cannot be loaded, and after the transport step when it is unreachable.
func (c *Checker) Run(ctx context.Context) *Report {
	c.defaults()
	rep := &Report{}

	cfg, ok := c.checkConfig(rep)
	if !ok {
		return rep
	}

	tr, err := c.Build(cfg)
	if err != nil {
		rep.add("transport", Fail, err.Error())
		return rep
	}
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	err = tr.Check(checkCtx)
	cancel()
	if err != nil {
		rep.add("transport", Fail, fmt.Sprintf("%s transport unreachable: %v", tr.Name(), err))
		return rep
	}
	rep.add("transport", Pass, describeTransport(cfg, tr))

	c.checkSPF(ctx, rep, cfg)

	if c.Send {
		c.sendTest(ctx, rep, cfg, tr)
	}
	return rep
}

func (c *Checker) checkConfig(rep *Report) (*config.MailConfig, bool) {
	var notes []string
	status := Pass

	if err := config.CheckMailConfigPerms(c.ConfigPath); err != nil {
		switch {
		case errors.Is(err, config.ErrMailConfigMissing):
			rep.add("config", Fail, "mail config not found: "+c.ConfigPath,
				"run `contactctl init "+c.ConfigPath+"` to create one")
			return nil, false
		case errors.Is(err, config.ErrMailConfigExposed) && !c.StrictPerms:
			status = Warn
			notes = append(notes, err.Error())
		default:
			rep.add("config", Fail, err.Error())
			return nil, false
		}
	}

	cfg, err := config.LoadMailConfig(c.ConfigPath)
	if err != nil {
		rep.add("config", Fail, err.Error())
		return nil, false
	}

	red := cfg.Redacted()
	notes = append(notes,
		"file: "+c.ConfigPath,
		"transport: "+cfg.Transport,
	)
	switch cfg.Transport {
	case config.TransportSMTP:
		notes = append(notes,
			fmt.Sprintf("host: %s:%d (%s)", cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Security),
			"username: "+orNone(cfg.SMTP.Username),
			"password: "+orNone(red.SMTP.Password))
	case config.TransportSendmail:
		notes = append(notes, "sendmail: "+cfg.Sendmail.Path)
	case config.TransportRelay:
		notes = append(notes, "relay: "+cfg.Relay.Addr)
		if cfg.Relay.DKIMKeyFile != "" {
			notes = append(notes, "dkim: selector "+cfg.Relay.DKIMSelector+" key "+cfg.Relay.DKIMKeyFile)
		}
	}
	notes = append(notes,
		"from: "+cfg.Message.FromAddress,
		"recipient: "+cfg.Message.Recipient)
	rep.add("config", status, notes...)
	return cfg, true
}

func (c *Checker) checkSPF(ctx context.Context, rep *Report, cfg *config.MailConfig) {
	var host string
	switch cfg.Transport {
	case config.TransportSMTP:
		host = cfg.SMTP.Host
	case config.TransportRelay:
		h, _, err := net.SplitHostPort(cfg.Relay.Addr)
		if err != nil {
			h = cfg.Relay.Addr
		}
		host = h
	default:
		rep.add("spf", Warn, "not checked for the sendmail transport; verify the local MTA's sending IP is listed in the sender's SPF record")
		return
	}

	from := cfg.Message.FromAddress
	domain := from[strings.LastIndex(from, "@")+1:]

	lookupCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	ips, err := c.LookupIP(lookupCtx, host)
	cancel()
	if err != nil || len(ips) == 0 {
		rep.add("spf", Warn, fmt.Sprintf("cannot resolve %s: %v", host, err))
		return
	}
	ip := ips[0]
	if ip.IsLoopback() || ip.IsPrivate() {
		rep.add("spf", Warn, fmt.Sprintf("%s is a local address (%s); SPF depends on the relay's public IP", host, ip))
		return
	}

	res := c.CheckSPF(ip, domain, from, host)
	detail := fmt.Sprintf("%s for %s sending as %s: %v", ip, host, domain, res)
	switch res {
	case spf.Pass:
		rep.add("spf", Pass, detail)
	case spf.Fail:
		rep.add("spf", Warn, detail, "recipients may reject or junk this mail; add the server to the SPF record of "+domain)
	default:
		rep.add("spf", Warn, detail)
	}
}

func (c *Checker) sendTest(ctx context.Context, rep *Report, cfg *config.MailConfig, tr email.Transport) {
	msg := email.Message{
		FromAddress:  cfg.Message.FromAddress,
		FromName:     cfg.Message.FromName,
		To:           []string{cfg.Message.Recipient},
		EnvelopeFrom: cfg.Message.NoReplyAddress,
		Subject:      TestSubject,
		TextBody:     TestBody,
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if err := tr.Send(sendCtx, msg); err != nil {
		rep.add("send", Fail, err.Error())
		return
	}
	rep.add("send", Pass, "test message sent to "+cfg.Message.Recipient, "check the inbox (and spam folder)")
}

func describeTransport(cfg *config.MailConfig, tr email.Transport) string {
	switch t := tr.(type) {
	case *email.SMTPTransport:
		return "connected to " + t.Addr()
	case *email.SendmailTransport:
		return "found " + t.Path()
	case *email.RelayTransport:
		return "relay " + t.Addr() + " answered"
	}
	return tr.Name() + " transport ready (" + cfg.Transport + ")"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
