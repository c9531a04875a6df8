package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"staffline/internal/inbound"
	"staffline/internal/logger"
	"staffline/internal/messaging"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type inboundHandler struct {
	interp     *inbound.Interpreter
	agencyID   string
	signatures *messaging.SignatureValidator
	publicURL  string
	log        *zap.Logger
}

func registerInboundWebhook(r chi.Router, h inboundHandler) {
	r.Post("/webhooks/messages", h.serve)
	r.Post("/webhooks/messages/{agency_id}", h.serve)
}

// serve acknowledges every well-formed message with an empty TwiML response,
// whether or not it matched a pipeline. Replies are sent through the gateway,
// never inline.
func (h inboundHandler) serve(w http.ResponseWriter, r *http.Request) {
	log := logger.OrNop(h.log)
	agencyID := chi.URLParam(r, "agency_id")
	if agencyID == "" {
		agencyID = h.agencyID
	}
	if err := r.ParseForm(); err != nil {
		writeTwiML(w, http.StatusBadRequest)
		return
	}
	if h.signatures != nil && !h.signatures.Valid(h.signedURL(r), formValues(r), r.Header.Get("X-Twilio-Signature")) {
		log.Warn("inbound signature rejected", zap.String(logger.FieldAgency, agencyID), zap.String("path", r.URL.Path))
		writeTwiML(w, http.StatusForbidden)
		return
	}
	msg := inbound.Message{
		MessageID: r.PostForm.Get("MessageSid"),
		From:      r.PostForm.Get("From"),
		Body:      r.PostForm.Get("Body"),
	}
	if msg.MessageID == "" {
		msg.MessageID = r.PostForm.Get("SmsSid")
	}
	if _, err := h.interp.Handle(r.Context(), agencyID, msg); err != nil {
		if errors.Is(err, inbound.ErrMissingField) {
			writeTwiML(w, http.StatusBadRequest)
			return
		}
		log.Error("inbound message failed", zap.String(logger.FieldAgency, agencyID), zap.Error(err))
		writeTwiML(w, http.StatusInternalServerError)
		return
	}
	writeTwiML(w, http.StatusOK)
}

func (h inboundHandler) signedURL(r *http.Request) string {
	base := strings.TrimRight(strings.TrimSpace(h.publicURL), "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}

func formValues(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeTwiML(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	io.WriteString(w, emptyTwiML)
}
