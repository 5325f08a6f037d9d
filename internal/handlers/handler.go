// Package handlers wires the mapping services to the HTTP API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mapping-service/internal/cdm"
	"mapping-service/internal/etlmapping"
	"mapping-service/internal/filestore"
	"mapping-service/internal/lookup"
	"mapping-service/internal/sessioncache"
	"mapping-service/internal/sourceschema"
	"mapping-service/internal/xmlwriter"
)

// ServiceName and ServiceVersion identify the service on /api/info.
const (
	ServiceName    = "cdm-mapping-service"
	ServiceVersion = "1.0.0"
)

// Handler carries the services behind the HTTP API.
type Handler struct {
	db       *gorm.DB
	mappings *etlmapping.Service
	schema   *sourceschema.Service
	lookups  *lookup.Service
	cdm      *cdm.Provider
	files    *filestore.Store
	xml      *xmlwriter.Generator
	cache    *sessioncache.Cache
}

// New builds the handler and its full service graph.
func New(db *gorm.DB, uploadDir, workDir string) (*Handler, error) {
	cdmProvider, err := cdm.NewProvider()
	if err != nil {
		return nil, err
	}

	files := filestore.NewStore(db, uploadDir)
	schema := sourceschema.NewService(db, files)
	lookups := lookup.NewService(db)
	mappings := etlmapping.NewService(db)
	xml := xmlwriter.NewGenerator(workDir, schema, lookups)
	cache := sessioncache.NewCache(db, mappings, files, xml)

	return &Handler{
		db:       db,
		mappings: mappings,
		schema:   schema,
		lookups:  lookups,
		cdm:      cdmProvider,
		files:    files,
		xml:      xml,
		cache:    cache,
	}, nil
}

// XMLGenerator exposes the artifact generator for the background cleanup
// job.
func (h *Handler) XMLGenerator() *xmlwriter.Generator {
	return h.xml
}

// RegisterRoutes mounts the API on the given Gin router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	// Open endpoints: no identity header required.
	api.GET("/info", h.getInfo)
	api.GET("/get_field_type", h.getFieldType)

	auth := api.Group("", RequireUsername())
	{
		auth.POST("/upload_scan_report", h.uploadScanReport)
		auth.POST("/upload_etl_mapping", h.uploadEtlMapping)
		auth.POST("/create_source_schema_by_scan_report", h.createSourceSchemaByScanReport)
		auth.GET("/load_saved_source_schema", h.loadSavedSourceSchema)
		auth.POST("/save_source_schema_to_db", h.saveSourceSchema)

		auth.POST("/view_sql", h.viewSQL)
		auth.POST("/validate_sql", h.validateSQL)
		auth.GET("/get_column_info", h.getColumnInfo)

		auth.GET("/get_cdm_versions", h.getCdmVersions)
		auth.GET("/get_cdm_schema", h.getCdmSchema)

		auth.POST("/xml_preview", h.xmlPreview)
		auth.POST("/generate_zip_xml", h.generateZipXML)
		auth.POST("/generate_etl_mapping_archive", h.generateEtlMappingArchive)

		auth.GET("/lookups", h.getLookups)
		auth.GET("/lookup/sql", h.getLookupSQL)
		auth.POST("/lookup", h.saveLookup)
		auth.PUT("/lookup", h.saveLookup)
		auth.DELETE("/lookup", h.deleteLookup)

		auth.GET("/get_user_schema_name", h.getUserSchemaName)
	}
}

func (h *Handler) getInfo(c *gin.Context) {
	RespondWithSuccess(c, http.StatusOK, gin.H{"name": ServiceName, "version": ServiceVersion})
}

func (h *Handler) getUserSchemaName(c *gin.Context) {
	RespondWithSuccess(c, http.StatusOK, currentUser(c))
}
