package controller

import (
	"strconv"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	"judgebox/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// CatalogController serves the fixed language and status tables.
type CatalogController struct{}

func NewCatalogController() *CatalogController {
	return &CatalogController{}
}

// Languages handles GET /languages.
func (h *CatalogController) Languages(c *gin.Context) {
	all := catalog.AllLanguages()
	views := make([]model.LanguageView, 0, len(all))
	for _, lang := range all {
		views = append(views, model.LanguageView{ID: lang.ID, Name: lang.Name})
	}
	response.OK(c, views)
}

// Language handles GET /languages/:id.
func (h *CatalogController) Language(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Language not found")
		return
	}
	lang, ok := catalog.LanguageByID(id)
	if !ok {
		response.NotFound(c, "Language not found")
		return
	}
	response.OK(c, model.LanguageView{ID: lang.ID, Name: lang.Name})
}

// Statuses handles GET /statuses.
func (h *CatalogController) Statuses(c *gin.Context) {
	all := catalog.AllStatuses()
	views := make([]model.StatusView, 0, len(all))
	for _, s := range all {
		views = append(views, model.NewStatusView(s))
	}
	response.OK(c, views)
}
