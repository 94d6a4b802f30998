package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuspass/nfc_backend_v1/internal/models"
)

type AccessRuleController struct {
	DB *gorm.DB
}

type accessRuleRequest struct {
	SchoolID    uint            `json:"school_id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	RuleType    string          `json:"rule_type"`
	ReaderIDs   []uint          `json:"reader_ids"`
	ClassIDs    []uint          `json:"class_ids"`
	Conditions  json.RawMessage `json:"conditions"`
	Action      string          `json:"action" binding:"required"`
	Priority    int             `json:"priority"`
	Active      *bool           `json:"active"`
	ValidFrom   *time.Time      `json:"valid_from"`
	ValidUntil  *time.Time      `json:"valid_until"`
}

func (req *accessRuleRequest) toModel(actor models.User) (models.AccessRule, error) {
	readerIDs, err := json.Marshal(req.ReaderIDs)
	if err != nil {
		return models.AccessRule{}, err
	}
	classIDs, err := json.Marshal(req.ClassIDs)
	if err != nil {
		return models.AccessRule{}, err
	}
	conditions := req.Conditions
	if len(conditions) > 0 {
		var cond models.RuleConditions
		if err := json.Unmarshal(conditions, &cond); err != nil {
			return models.AccessRule{}, err
		}
	} else {
		conditions = json.RawMessage("{}")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return models.AccessRule{
		SchoolID:    req.SchoolID,
		Name:        req.Name,
		Description: req.Description,
		RuleType:    req.RuleType,
		ReaderIDs:   datatypes.JSON(readerIDs),
		ClassIDs:    datatypes.JSON(classIDs),
		Conditions:  datatypes.JSON(conditions),
		Action:      req.Action,
		Priority:    req.Priority,
		Active:      active,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		CreatedBy:   actor.ID,
	}, nil
}

// Create registers a new access rule. It takes effect on the next sync of
// any reader it scopes to.
func (rc *AccessRuleController) Create(c *gin.Context) {
	uVal, _ := c.Get("user")
	actor := uVal.(models.User)

	var req accessRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidRuleAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	rule, err := req.toModel(actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := rc.DB.Create(&rule).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, accessRuleResponse(rule))
}

func (rc *AccessRuleController) List(c *gin.Context) {
	query := rc.DB.Model(&models.AccessRule{})
	if schoolStr := c.Query("school_id"); schoolStr != "" {
		if schoolID, err := strconv.Atoi(schoolStr); err == nil && schoolID > 0 {
			query = query.Where("school_id = ?", schoolID)
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid school_id"})
			return
		}
	}
	if activeStr := c.Query("active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			query = query.Where("active = ?", active)
		}
	}
	var rules []models.AccessRule
	if err := query.Order("priority DESC, id ASC").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(rules))
	for _, r := range rules {
		out = append(out, accessRuleResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (rc *AccessRuleController) Get(c *gin.Context) {
	rule, ok := rc.findByID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, accessRuleResponse(rule))
}

// Update replaces the rule's definition; the id and creator are kept.
func (rc *AccessRuleController) Update(c *gin.Context) {
	rule, ok := rc.findByID(c)
	if !ok {
		return
	}
	var req accessRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.IsValidRuleAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	updated, err := req.toModel(models.User{ID: rule.CreatedBy})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated.ID = rule.ID
	updated.CreatedAt = rule.CreatedAt
	if err := rc.DB.Save(&updated).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, accessRuleResponse(updated))
}

func (rc *AccessRuleController) Delete(c *gin.Context) {
	rule, ok := rc.findByID(c)
	if !ok {
		return
	}
	if err := rc.DB.Delete(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

func (rc *AccessRuleController) findByID(c *gin.Context) (models.AccessRule, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.AccessRule{}, false
	}
	var rule models.AccessRule
	if err := rc.DB.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return models.AccessRule{}, false
	}
	return rule, true
}

func accessRuleResponse(r models.AccessRule) gin.H {
	return gin.H{
		"id":          r.ID,
		"school_id":   r.SchoolID,
		"name":        r.Name,
		"description": r.Description,
		"rule_type":   r.RuleType,
		"reader_ids":  json.RawMessage(r.ReaderIDs),
		"class_ids":   json.RawMessage(r.ClassIDs),
		"conditions":  json.RawMessage(r.Conditions),
		"action":      r.Action,
		"priority":    r.Priority,
		"active":      r.Active,
		"valid_from":  r.ValidFrom,
		"valid_until": r.ValidUntil,
		"created_at":  r.CreatedAt,
	}
}
