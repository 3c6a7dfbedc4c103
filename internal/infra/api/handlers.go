package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/usecase"
)

// Client-facing messages.
const (
	msgMissingParams  = "Отсутствуют code или deviceFingerprint"
	msgInvalidCode    = "Неверный, использованный или истёкший промокод"
	msgDeviceMismatch = "Промокод привязан к другому устройству. Шаринг запрещён!"
	msgActivated      = "Доступ к курсу активирован!"
	msgDeviceRequired = "Device required"
	msgPromoNotFound  = "Промокод не найден"
	msgServerError    = "Серверная ошибка"
	msgGenericError   = "Ошибка"
	msgStatusOK       = "API работает!"
	msgBadDays        = "days должен быть от 1 до 365"
	msgUnauthorized   = "Unauthorized"
	msgNotFoundRoute  = "Not found"
)

type response struct {
	Success   bool      `json:"success"`
	Msg       string    `json:"msg,omitempty"`
	Course    string    `json:"course,omitempty"`
	ExpiresAt string    `json:"expiresAt,omitempty"`
	Promo     *promoDTO `json:"promo,omitempty"`
}

type activatedResponse struct {
	Success   bool           `json:"success"`
	Activated []activatedDTO `json:"activated"`
}

type activatedDTO struct {
	Course    string `json:"course"`
	ExpiresAt string `json:"expiresAt"`
	Expired   bool   `json:"expired"`
}

type promoDTO struct {
	Code      string `json:"code"`
	Course    string `json:"course"`
	ExpiresAt string `json:"expiresAt"`
	Expired   bool   `json:"expired"`
	Used      bool   `json:"used"`
}

type extendRequest struct {
	Days int `json:"days"`
}

func failure(msg string) response { return response{Success: false, Msg: msg} }

func isoTime(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05.000Z") }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleValidatePromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	device := r.URL.Query().Get("deviceFingerprint")
	if code == "" || device == "" {
		writeJSON(w, http.StatusBadRequest, failure(msgMissingParams))
		return
	}

	act, err := s.redemption.Redeem(ctx, code, device)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{
			Success:   true,
			Msg:       msgActivated,
			Course:    act.Course,
			ExpiresAt: isoTime(act.ExpiresAt),
		})
	case errors.Is(err, domain.ErrDeviceMismatch):
		writeJSON(w, http.StatusBadRequest, failure(msgDeviceMismatch))
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, failure(msgInvalidCode))
	default:
		logging.With(ctx, s.log).Error().Err(err).
			Str("device", logging.Redact(device, s.dev)).
			Msg("validate-promo failed")
		writeJSON(w, http.StatusInternalServerError, failure(msgServerError))
	}
}

func (s *Server) handleGetActivated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device := r.URL.Query().Get("deviceFingerprint")
	if device == "" {
		writeJSON(w, http.StatusBadRequest, failure(msgDeviceRequired))
		return
	}

	list, err := s.entitlement.ListActive(ctx, device)
	if err != nil {
		logging.With(ctx, s.log).Error().Err(err).
			Str("device", logging.Redact(device, s.dev)).
			Msg("get-activated failed")
		writeJSON(w, http.StatusInternalServerError, failure(msgGenericError))
		return
	}
	writeJSON(w, http.StatusOK, activatedResponse{Success: true, Activated: toActivated(list)})
}

// toActivated keeps "activated": [] in the body even when nothing is active.
func toActivated(list []model.Entitlement) []activatedDTO {
	out := make([]activatedDTO, 0, len(list))
	for _, e := range list {
		out = append(out, activatedDTO{Course: e.Course, ExpiresAt: isoTime(e.ExpiresAt), Expired: e.Expired})
	}
	return out
}

func (s *Server) handleLookupPromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.codeAdmin.Lookup(ctx, chi.URLParam(r, "code"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Success: true, Promo: &promoDTO{
			Code:      c.Code,
			Course:    c.Course,
			ExpiresAt: isoTime(c.ExpiresAt),
			Expired:   c.Expired,
			Used:      c.Used,
		}})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusNotFound, failure(msgPromoNotFound))
	default:
		logging.With(ctx, s.log).Error().Err(err).Msg("promo lookup failed")
		writeJSON(w, http.StatusInternalServerError, failure(msgGenericError))
	}
}

func (s *Server) handleExtendPromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req extendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, failure(msgBadDays))
		return
	}

	c, err := s.codeAdmin.Extend(ctx, chi.URLParam(r, "code"), req.Days)
	switch {
	case err == nil:
		days := req.Days
		if days == 0 {
			days = usecase.DefaultExtendDays
		}
		writeJSON(w, http.StatusOK, response{
			Success:   true,
			Msg:       fmt.Sprintf("Продлено на %d дней. Новое expiresAt: %s", days, isoTime(c.ExpiresAt)),
			ExpiresAt: isoTime(c.ExpiresAt),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, failure(msgPromoNotFound))
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, failure(msgBadDays))
	default:
		logging.With(ctx, s.log).Error().Err(err).Msg("promo extend failed")
		writeJSON(w, http.StatusInternalServerError, failure(msgGenericError))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Success: true, Msg: msgStatusOK})
}
