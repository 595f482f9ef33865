// Package contact implements the contact form endpoint: session rate
// gate, honeypot, sanitizing, validation with a spam scan, and relaying
// the message through the configured mail transport.
package contact

import (
	"context"
	"errors"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/dalemusser/contactrelay/httputil"
	"github.com/dalemusser/contactrelay/metrics"
	"github.com/dalemusser/contactrelay/middleware"
	"github.com/dalemusser/contactrelay/pantry/email"
	"github.com/dalemusser/contactrelay/pantry/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client-facing messages.
const (
	MsgSent         = "Thank you! Your message has been sent."
	MsgFakeSuccess  = "Message sent successfully!"
	MsgTooSoon      = "Please wait a moment before submitting another message."
	MsgSendFailed   = "Sorry, the message could not be sent. Please try again later."
	MsgConfigError  = "Server configuration error."
	MsgInvalidForm  = "Invalid form submission."
	DefaultHoneypot = "fax"
)

const maxMultipartMemory = 1 << 20

// Config holds the handler settings from the app config.
type Config struct {
	// SiteName appears in the default subject.
	SiteName string

	// HoneypotField is the hidden input bots fill in. Default "fax".
	HoneypotField string

	// MinInterval between sends from one session. Default 60s.
	MinInterval time.Duration

	// Location formats the Submitted timestamp. Default time.Local.
	Location *time.Location

	// SpamTerms overrides DefaultSpamTerms when non-nil.
	SpamTerms []string

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Handler serves the contact endpoint.
type Handler struct {
	cfg       Config
	mail      *email.Provider
	gate      *Gate
	validator *Validator
	logger    *zap.Logger
}

// NewHandler wires the handler. stamps holds the per-session send times;
// mail yields the current transport on each send.
func NewHandler(cfg Config, mail *email.Provider, stamps session.Stamps, logger *zap.Logger) *Handler {
	if cfg.HoneypotField == "" {
		cfg.HoneypotField = DefaultHoneypot
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:       cfg,
		mail:      mail,
		gate:      NewGate(stamps, cfg.MinInterval),
		validator: NewValidator(cfg.SpamTerms),
		logger:    logger,
	}
}

// Mount routes every method on path to the handler, which answers 405 for
// anything but POST.
func (h *Handler) Mount(r chi.Router, path string) {
	r.Handle(path, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.Error(w, http.StatusMethodNotAllowed, middleware.MethodNotAllowedMessage)
		return
	}

	ctx := r.Context()
	now := h.cfg.Now()
	sub := Submission{
		ID:            h.cfg.NewID(),
		SubmittedAt:   now.In(h.cfg.Location),
		ClientAddress: clientAddress(r),
	}
	log := h.logger.With(
		zap.String("submission_id", sub.ID),
		zap.String("request_id", chimw.GetReqID(ctx)),
	)

	var sessionID string
	if s := session.FromContext(ctx); s != nil {
		sessionID = s.ID()
		ok, err := h.gate.Allow(ctx, sessionID, now)
		if err != nil {
			log.Warn("rate stamp lookup failed; allowing", zap.Error(err))
		}
		if !ok {
			h.finish(w, log, metrics.OutcomeRateLimited, http.StatusTooManyRequests, MsgTooSoon)
			return
		}
	} else {
		log.Warn("no session on request; interval gate skipped")
	}

	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.finish(w, log, metrics.OutcomeInvalid, http.StatusRequestEntityTooLarge, middleware.TooLargeMessage)
			return
		}
		log.Info("form parse failed", zap.Error(err))
		h.finish(w, log, metrics.OutcomeInvalid, http.StatusBadRequest, MsgInvalidForm)
		return
	}

	if r.PostForm.Get(h.cfg.HoneypotField) != "" {
		h.finish(w, log, metrics.OutcomeHoneypot, http.StatusOK, MsgFakeSuccess)
		return
	}

	form := Form{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Phone:   r.PostForm.Get("phone"),
		Message: r.PostForm.Get("message"),
	}.Sanitize()

	res := h.validator.Validate(form)
	if res.Spam {
		log.Info("spam term matched", zap.String("term", res.SpamTerm))
		h.finish(w, log, metrics.OutcomeSpam, http.StatusOK, MsgFakeSuccess)
		return
	}
	if !res.OK() {
		h.finish(w, log, metrics.OutcomeInvalid, http.StatusBadRequest, res.Message())
		return
	}

	// From here the submission runs to completion even if the client goes
	// away; the transport's own timeout bounds the send.
	sendCtx := context.WithoutCancel(ctx)

	sub.Name = form.Name
	sub.Email = form.Email
	sub.Phone = form.Phone
	sub.Message = form.Message

	mailer, err := h.mail.Mailer()
	if err != nil {
		log.Error("mail configuration unavailable", zap.Error(err))
		h.finish(w, log, metrics.OutcomeConfigError, http.StatusInternalServerError, MsgConfigError)
		return
	}

	msg := Compose(mailer.Config, h.cfg.SiteName, sub)
	start := time.Now()
	err = mailer.Transport.Send(sendCtx, msg)
	metrics.MailSend(mailer.Transport.Name(), time.Since(start), err)
	if err != nil {
		log.Error("mail send failed",
			zap.String("transport", mailer.Transport.Name()),
			zap.Error(err))
		h.finish(w, log, metrics.OutcomeSendFailed, http.StatusInternalServerError, MsgSendFailed)
		return
	}

	if sessionID != "" {
		if err := h.gate.Record(sendCtx, sessionID, now); err != nil {
			log.Warn("rate stamp write failed", zap.Error(err))
		}
	}
	h.finish(w, log, metrics.OutcomeSent, http.StatusOK, MsgSent)
}

func (h *Handler) finish(w http.ResponseWriter, log *zap.Logger, outcome string, code int, message string) {
	metrics.Submission(outcome)
	log.Info("contact submission", zap.String("outcome", outcome), zap.Int("status", code))
	httputil.WriteStatus(w, code, message)
}

// parseForm reads url-encoded or multipart bodies into r.PostForm.
func parseForm(r *http.Request) error {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && ct == "multipart/form-data" {
		return r.ParseMultipartForm(maxMultipartMemory)
	}
	return r.ParseForm()
}

// clientAddress is the peer IP; RealIP upstream rewrites RemoteAddr when a
// proxy is trusted.
func clientAddress(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
