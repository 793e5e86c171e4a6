package handlers

import (
	"RatedApp/models"
	"RatedApp/repositories"
	"RatedApp/services"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	service *services.PresetService
}

func NewConfigHandler(service *services.PresetService) *ConfigHandler {
	return &ConfigHandler{service: service}
}

// GetActiveConfiguration returns the configuration currently applied for the
// requested purpose (?purpose=scoring|analytics, scoring by default).
func (h *ConfigHandler) GetActiveConfiguration(c *gin.Context) {
	purpose := c.DefaultQuery("purpose", repositories.PurposeScoring)
	config, err := h.service.GetActive(c, purpose)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if config == nil {
		c.JSON(404, gin.H{"error": "No active configuration"})
		return
	}
	c.JSON(200, config)
}

func (h *ConfigHandler) GetAllConfigurations(c *gin.Context) {
	configs, err := h.service.GetAll(c)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, configs)
}

func (h *ConfigHandler) GetConfigurationByID(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	config, err := h.service.GetByID(c, id)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if config == nil {
		c.JSON(404, gin.H{"error": "Configuration not found"})
		return
	}
	c.JSON(200, config)
}

func (h *ConfigHandler) CreateConfiguration(c *gin.Context) {
	var config models.ScoringConfiguration
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Create(c, &config); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePresetName) {
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(201, config)
}

func (h *ConfigHandler) UpdateConfiguration(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	var config models.ScoringConfiguration
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	config.ID = id
	if err := h.service.Update(c, &config); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, config)
}

// ApplyConfiguration flags a preset active for on-demand scoring or bulk
// analytics.
func (h *ConfigHandler) ApplyConfiguration(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	purpose := c.DefaultQuery("purpose", repositories.PurposeScoring)
	if err := h.service.Apply(c, id, purpose); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "Configuration applied"})
}

func (h *ConfigHandler) DeleteConfiguration(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	if err := h.service.Delete(c, id); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(204, gin.H{"message": "Configuration deleted"})
}

func (h *ConfigHandler) ReplaceAgeBrackets(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	var brackets []models.AgeBracket
	if err := c.ShouldBindJSON(&brackets); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ReplaceAgeBrackets(c, id, brackets); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "Age brackets replaced"})
}

func (h *ConfigHandler) ReplaceSpendBrackets(c *gin.Context) {
	id, err := parseConfigID(c)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid configuration ID"})
		return
	}
	var brackets []models.SpendBracket
	if err := c.ShouldBindJSON(&brackets); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ReplaceSpendBrackets(c, id, brackets); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"message": "Spend brackets replaced"})
}

func parseConfigID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("config_id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
