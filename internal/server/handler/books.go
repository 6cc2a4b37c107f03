package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// BookReader returns summaries of the locally maintained books.
type BookReader interface {
	Summary(venue domain.Venue, key string) (domain.BookSummary, bool)
}

// BookHandler serves order book summaries.
type BookHandler struct {
	books  BookReader
	cache  domain.SummaryCache // optional; consulted when the book is not local
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler. cache may be nil.
func NewBookHandler(books BookReader, cache domain.SummaryCache, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:  books,
		cache:  cache,
		logger: logHandler(logger, "books"),
	}
}

// GetBook returns the top of book of one market. Kalshi books are keyed by
// ticker, Polymarket books by asset id.
// GET /api/books/{venue}/{key}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(pathParam(r, "venue"))
	key := pathParam(r, "key")
	if !venue.Valid() {
		writeError(w, http.StatusBadRequest, "unknown venue "+string(venue))
		return
	}

	if sum, ok := h.books.Summary(venue, key); ok {
		writeJSON(w, http.StatusOK, sum)
		return
	}
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	sum, err := h.cache.GetSummary(r.Context(), venue, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cached summary failed",
			slog.String("venue", string(venue)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load book")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
