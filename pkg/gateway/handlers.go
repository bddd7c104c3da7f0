// Copyright 2024-2026 Aiku AI

package gateway

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxMediaBytes caps how much is read from a mediaUrl response.
const maxMediaBytes = 50 << 20

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// authResponse is shared by /auth and /checkAuth.
type authResponse struct {
	OK            bool   `json:"ok"`
	Authenticated bool   `json:"authenticated"`
	Connection    string `json:"connection"`
	QR            string `json:"qr,omitempty"`
	PairingCode   string `json:"pairingCode,omitempty"`
}

func (a *API) handleAuth(w http.ResponseWriter, _ *http.Request) {
	state, authenticated := a.session.Status()
	resp := authResponse{OK: true, Authenticated: authenticated, Connection: string(state)}
	if !authenticated {
		if artifact := a.session.PairingArtifact(); artifact != nil {
			if artifact.QRCode != "" {
				uri, err := RenderQRDataURI(artifact.QRCode)
				if err != nil {
					a.writeErr(w, err)
					return
				}
				resp.QR = uri
			}
			resp.PairingCode = artifact.PairCode
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckAuth(w http.ResponseWriter, _ *http.Request) {
	state, authenticated := a.session.Status()
	a.writeJSON(w, http.StatusOK, authResponse{
		OK:            true,
		Authenticated: authenticated,
		Connection:    string(state),
	})
}

type sendMessageRequest struct {
	Number  string `json:"number"`
	JID     string `json:"jid"`
	Message string `json:"message"`
	Delete  bool   `json:"delete"`
}

type sendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId"`
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.Message == "" {
		a.writeErr(w, missingField("message"))
		return
	}
	to, err := destination(req.Number, req.JID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	id, err := a.session.SendText(r.Context(), to, req.Message, req.Delete)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sendResponse{OK: true, MessageID: id})
}

type sendButtonRequest struct {
	Number  string   `json:"number"`
	JID     string   `json:"jid"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons"`
}

func (a *API) handleSendButton(w http.ResponseWriter, r *http.Request) {
	var req sendButtonRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.Text == "" {
		a.writeErr(w, missingField("text"))
		return
	}
	to, err := destination(req.Number, req.JID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	id, err := a.session.SendButtons(r.Context(), to, req.Text, req.Buttons)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sendResponse{OK: true, MessageID: id})
}

type sendListRequest struct {
	Number   string        `json:"number"`
	JID      string        `json:"jid"`
	Text     string        `json:"text"`
	Sections []ListSection `json:"sections"`
}

func (a *API) handleSendList(w http.ResponseWriter, r *http.Request) {
	var req sendListRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.Text == "" {
		a.writeErr(w, missingField("text"))
		return
	}
	if len(req.Sections) == 0 {
		a.writeErr(w, missingField("sections"))
		return
	}
	to, err := destination(req.Number, req.JID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	id, err := a.session.SendList(r.Context(), to, req.Text, req.Sections)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sendResponse{OK: true, MessageID: id})
}

type sendMediaRequest struct {
	Number      string `json:"number"`
	JID         string `json:"jid"`
	MediaURL    string `json:"mediaUrl"`
	MediaBase64 string `json:"mediaBase64"`
	Mimetype    string `json:"mimetype"`
}

func (a *API) handleSendViewOnceMedia(w http.ResponseWriter, r *http.Request) {
	var req sendMediaRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.Mimetype == "" {
		a.writeErr(w, missingField("mimetype"))
		return
	}
	if req.MediaURL == "" && req.MediaBase64 == "" {
		a.writeErr(w, missingField("mediaUrl or mediaBase64"))
		return
	}
	to, err := destination(req.Number, req.JID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	data, err := a.loadMedia(r, req)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	id, err := a.session.SendViewOnceMedia(r.Context(), to, data, req.Mimetype)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sendResponse{OK: true, MessageID: id})
}

// loadMedia materializes the media bytes from whichever source the request
// carries, preferring the inline base64 form.
func (a *API) loadMedia(r *http.Request, req sendMediaRequest) ([]byte, error) {
	if req.MediaBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			return nil, &ValidationError{Field: "mediaBase64", Reason: "is not valid base64"}
		}
		return data, nil
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, req.MediaURL, nil)
	if err != nil {
		return nil, &ValidationError{Field: "mediaUrl", Reason: "is not a valid URL"}
	}
	resp, err := a.media.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch media: source returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	return data, nil
}

type markOnlineRequest struct {
	DurationSec int `json:"durationSec"`
}

func (a *API) handleMarkOnline(w http.ResponseWriter, r *http.Request) {
	var req markOnlineRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.DurationSec <= 0 {
		req.DurationSec = 10
	}

	if err := a.session.MarkOnline(time.Duration(req.DurationSec) * time.Second); err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "durationSec": req.DurationSec})
}

type markTypingRequest struct {
	Number      string `json:"number"`
	JID         string `json:"jid"`
	DurationSec int    `json:"durationSec"`
}

func (a *API) handleMarkTyping(w http.ResponseWriter, r *http.Request) {
	var req markTypingRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	to, err := destination(req.Number, req.JID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	if req.DurationSec <= 0 {
		req.DurationSec = 5
	}

	if err := a.session.MarkTyping(to, time.Duration(req.DurationSec)*time.Second); err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "durationSec": req.DurationSec})
}

type deleteRequest struct {
	MessageID string `json:"messageId"`
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.MessageID == "" {
		a.writeErr(w, missingField("messageId"))
		return
	}

	existed := a.tracker.Delete(req.MessageID)
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "existed": existed})
}

type pairCodeRequest struct {
	Number string `json:"number"`
}

func (a *API) handlePairCode(w http.ResponseWriter, r *http.Request) {
	var req pairCodeRequest
	if err := decode(r, &req); err != nil {
		a.writeErr(w, err)
		return
	}
	if req.Number == "" {
		a.writeErr(w, missingField("number"))
		return
	}

	code, err := a.session.RequestPairCode(r.Context(), req.Number)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "pairingCode": code})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.session.Logout(r.Context()); err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
