package httpadapter

import (
	"net/http"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrOracleContract):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrOracleUnavailable),
		domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrVectorIndex),
		domain.IsKind(err, domain.ErrEmbedding):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage keeps upstream details out of responses; they are logged instead.
func publicErrorMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "Session tidak ditemukan atau sudah kadaluarsa."
	case http.StatusBadGateway:
		return "query rewriting returned an invalid response"
	case http.StatusServiceUnavailable:
		return "a dependency is temporarily unavailable, retry later"
	default:
		return "Terjadi kesalahan saat memproses permintaan. Silakan coba lagi."
	}
}
