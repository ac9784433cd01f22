package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/logger"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/offerwire/promofeed/internal/pipeline"
	"github.com/offerwire/promofeed/internal/review"
	"github.com/offerwire/promofeed/internal/store"
)

// Handlers bundles the pipeline services behind the HTTP surface.
type Handlers struct {
	store     store.Store
	importer  *pipeline.Importer
	processor *pipeline.Processor
	review    *review.Service
}

// NewHandlers wires the handler set.
func NewHandlers(st store.Store, imp *pipeline.Importer, proc *pipeline.Processor, rev *review.Service) *Handlers {
	return &Handlers{store: st, importer: imp, processor: proc, review: rev}
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// respondError maps the typed error hierarchy onto HTTP statuses. Exhausted
// transient retries name the likely cause instead of a generic failure.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, review.ErrReasonRequired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case store.IsTransient(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "datastore unreachable after retries; it may be cold or sleeping",
		})
	default:
		logger.Get().Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// ImportPosts handles POST /api/v1/admin/import. The body is either a single
// import item or an array of them.
func (h *Handlers) ImportPosts(c *fiber.Ctx) error {
	var items []pipeline.ImportItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		var single pipeline.ImportItem
		if err := json.Unmarshal(c.Body(), &single); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "body must be an import item or an array of items",
			})
		}
		items = []pipeline.ImportItem{single}
	}

	res := h.importer.Import(c.Context(), items)
	return c.JSON(res)
}

// ImportFile handles POST /api/v1/admin/import/file: a multipart upload of a
// JSON array of import items.
func (h *Handlers) ImportFile(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file field is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer file.Close()

	var items []pipeline.ImportItem
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file must contain a JSON array of import items",
		})
	}

	res := h.importer.Import(c.Context(), items)
	return c.JSON(res)
}

// ProcessBatch handles POST /api/v1/admin/process. With no ids, it picks up
// unprocessed source posts.
func (h *Handlers) ProcessBatch(c *fiber.Ctx) error {
	var req struct {
		SourceIDs []uuid.UUID `json:"source_ids"`
		Limit     int         `json:"limit"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	ids := req.SourceIDs
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = 50
		}
		posts, err := h.store.ListUnprocessedSourcePosts(c.Context(), limit)
		if err != nil {
			return respondError(c, err)
		}
		for _, p := range posts {
			ids = append(ids, p.ID)
		}
	}

	res, err := h.processor.ProcessBatch(c.Context(), ids)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// ListPending handles GET /api/v1/pending with optional status/category
// filters.
func (h *Handlers) ListPending(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	f := store.PendingFilter{
		Status:   models.Status(c.Query("status")),
		Category: models.Category(c.Query("category")),
		Limit:    limit,
		Offset:   c.QueryInt("offset", 0),
	}

	recs, err := h.store.ListPending(c.Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"total": len(recs),
		"items": recs,
	})
}

func (h *Handlers) pendingID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, errors.New("invalid pending record id")
	}
	return id, nil
}

// GetPending handles GET /api/v1/pending/:id.
func (h *Handlers) GetPending(c *fiber.Ctx) error {
	id, err := h.pendingID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	rec, err := h.store.GetPending(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// SavePending handles PUT /api/v1/admin/pending/:id (manual edit, status
// unchanged).
func (h *Handlers) SavePending(c *fiber.Ctx) error {
	id, err := h.pendingID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req review.SaveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	rec, err := h.review.Save(c.Context(), id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// ApprovePending handles POST /api/v1/admin/pending/:id/approve and returns
// the new published record.
func (h *Handlers) ApprovePending(c *fiber.Ctx) error {
	id, err := h.pendingID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	pub, err := h.review.Approve(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pub)
}

// RejectPending handles POST /api/v1/admin/pending/:id/reject.
func (h *Handlers) RejectPending(c *fiber.Ctx) error {
	id, err := h.pendingID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	rec, err := h.review.Reject(c.Context(), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// ReprocessPending handles POST /api/v1/admin/pending/:id/reprocess.
func (h *Handlers) ReprocessPending(c *fiber.Ctx) error {
	id, err := h.pendingID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rec, err := h.processor.Reprocess(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// GetPublished handles GET /api/v1/published/:id.
func (h *Handlers) GetPublished(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid published record id"})
	}
	pub, err := h.store.GetPublished(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pub)
}

// LookupSource handles GET /api/v1/sources?url=... so an operator can check
// whether a tweet was already imported.
func (h *Handlers) LookupSource(c *fiber.Ctx) error {
	url := c.Query("url")
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url query parameter is required"})
	}
	post, err := h.store.GetSourcePostByURL(c.Context(), url)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

// ListBanks handles GET /api/v1/banks.
func (h *Handlers) ListBanks(c *fiber.Ctx) error {
	banks, err := h.store.ListBanks(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"total": len(banks),
		"items": banks,
	})
}
