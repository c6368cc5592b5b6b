package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/apolmig/smartqr-backend/internal/services"
)

type RecordHandler struct {
	recordService services.RecordService
}

func NewRecordHandler(recordService services.RecordService) *RecordHandler {
	return &RecordHandler{recordService: recordService}
}

type createRecordRequest struct {
	Name               string                 `json:"name"`
	Target             string                 `json:"target" binding:"required"`
	EnableSmartRouting bool                   `json:"enable_smart_routing"`
	StyleOptions       datatypes.JSON         `json:"style_options"`
	Variants           []createVariantRequest `json:"variants"`
}

type createVariantRequest struct {
	Target     string         `json:"target" binding:"required"`
	Weight     int            `json:"weight"`
	Conditions datatypes.JSON `json:"conditions"`
}

type updateRecordRequest struct {
	Name               *string        `json:"name"`
	Target             *string        `json:"target"`
	IsActive           *bool          `json:"is_active"`
	EnableSmartRouting *bool          `json:"enable_smart_routing"`
	StyleOptions       datatypes.JSON `json:"style_options"`
}

func (rh *RecordHandler) Create(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	in := services.CreateRecordInput{
		Name:               req.Name,
		Target:             req.Target,
		EnableSmartRouting: req.EnableSmartRouting,
		StyleOptions:       req.StyleOptions,
	}
	for _, v := range req.Variants {
		in.Variants = append(in.Variants, services.VariantInput{
			Target:     v.Target,
			Weight:     v.Weight,
			Conditions: v.Conditions,
		})
	}

	rec, warnings, err := rh.recordService.CreateRecord(c.Request.Context(), id, in)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec, "warnings": warnings})
}

func (rh *RecordHandler) List(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	rows, err := rh.recordService.GetUserRecords(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

func (rh *RecordHandler) Update(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(c)
	if !ok {
		return
	}
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	rec, err := rh.recordService.UpdateRecord(c.Request.Context(), id, recordID, services.UpdateRecordInput{
		Name:               req.Name,
		Target:             req.Target,
		IsActive:           req.IsActive,
		EnableSmartRouting: req.EnableSmartRouting,
		StyleOptions:       req.StyleOptions,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

func (rh *RecordHandler) Delete(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(c)
	if !ok {
		return
	}
	if err := rh.recordService.DeleteRecord(c.Request.Context(), id, recordID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (rh *RecordHandler) Stats(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(c)
	if !ok {
		return
	}
	stats, err := rh.recordService.GetRecordStats(c.Request.Context(), id, recordID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func recordIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_record_id", err)
		return uuid.Nil, false
	}
	return id, true
}
