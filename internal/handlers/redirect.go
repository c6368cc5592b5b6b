package handlers

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/services"
)

// eventWriteTimeout bounds the detached scan-event write after the redirect
// response has already gone out.
const eventWriteTimeout = 5 * time.Second

var errUnknownKey = errors.New("unknown short key")

type RedirectHandler struct {
	log           *logger.Logger
	recordService services.RecordService
	eventService  services.EventService
}

func NewRedirectHandler(log *logger.Logger, recordService services.RecordService, eventService services.EventService) *RedirectHandler {
	return &RedirectHandler{
		log:           log.With("handler", "RedirectHandler"),
		recordService: recordService,
		eventService:  eventService,
	}
}

// Resolve is the scan hot path: short key in, 302 out. The scan event is
// recorded after the redirect is decided, detached from the request so a
// slow event write cannot delay the visitor.
func (rh *RedirectHandler) Resolve(c *gin.Context) {
	key := c.Param("key")

	rec, err := rh.recordService.GetRecordByKey(c.Request.Context(), key)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if rec == nil || !rec.IsActive {
		RespondError(c, http.StatusNotFound, "not_found", errUnknownKey)
		return
	}

	target := rec.Target
	in := services.EventInput{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
	in.Device, in.OS, in.Browser = classifyUserAgent(in.UserAgent)

	if rec.EnableSmartRouting {
		if v := rh.pickVariant(c.Request.Context(), rec); v != nil {
			target = v.Target
			vid := v.ID
			in.VariantID = &vid
		}
	}

	recordID := rec.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
		defer cancel()
		rh.eventService.RecordEvent(ctx, recordID, in)
	}()

	c.Redirect(http.StatusFound, target)
}

// pickVariant draws a weighted random active variant. Any failure falls back
// to the record's own target; routing is an enhancement, never a gate.
func (rh *RedirectHandler) pickVariant(ctx context.Context, rec *domain.Record) *domain.Variant {
	variants, err := rh.recordService.GetActiveVariants(ctx, rec.ID)
	if err != nil {
		rh.log.Warn("variant lookup failed, using record target", "record_id", rec.ID, "error", err)
		return nil
	}
	if len(variants) == 0 {
		return nil
	}

	total := 0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total <= 0 {
		return variants[0]
	}
	pick := rand.Intn(total)
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		pick -= v.Weight
		if pick < 0 {
			return v
		}
	}
	return variants[len(variants)-1]
}

// classifyUserAgent does a rough device/OS/browser split, enough for the
// stats surface. Anything unrecognized stays empty.
func classifyUserAgent(ua string) (device, osName, browser string) {
	l := strings.ToLower(ua)

	switch {
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		device = "tablet"
	case strings.Contains(l, "mobile") || strings.Contains(l, "iphone") || strings.Contains(l, "android"):
		device = "mobile"
	case l != "":
		device = "desktop"
	}

	switch {
	case strings.Contains(l, "iphone"), strings.Contains(l, "ipad"), strings.Contains(l, "ios"):
		osName = "ios"
	case strings.Contains(l, "android"):
		osName = "android"
	case strings.Contains(l, "windows"):
		osName = "windows"
	case strings.Contains(l, "mac os"):
		osName = "macos"
	case strings.Contains(l, "linux"):
		osName = "linux"
	}

	switch {
	case strings.Contains(l, "edg/"):
		browser = "edge"
	case strings.Contains(l, "chrome"):
		browser = "chrome"
	case strings.Contains(l, "safari"):
		browser = "safari"
	case strings.Contains(l, "firefox"):
		browser = "firefox"
	}
	return device, osName, browser
}
