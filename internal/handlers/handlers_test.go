package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mapping-service/internal/database"
	"mapping-service/internal/lookup"
	"mapping-service/internal/models"
)

var testDB *gorm.DB
var router *gin.Engine

const sampleReportCSV = "table,column,type,nullable,value,frequency\n" +
	"persons,person_id,INT,false,,\n" +
	"persons,gender,VARCHAR,true,,\n" +
	"persons,gender,,,M,620\n" +
	"persons,gender,,,F,580\n" +
	"visits,visit_id,INT,false,,\n"

// TestMain sets up the test database and router, runs tests, and then tears down.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New())
	var err error
	testDB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		log.Fatalf("Failed to migrate test database schema: %v", err)
	}
	if err := lookup.SeedDefaults(testDB); err != nil {
		log.Fatalf("Failed to seed lookups: %v", err)
	}

	uploadDir, err := os.MkdirTemp("", "uploads")
	if err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}
	workDir, err := os.MkdirTemp("", "generated")
	if err != nil {
		log.Fatalf("Failed to create work dir: %v", err)
	}

	handler, err := New(testDB, uploadDir, workDir)
	if err != nil {
		log.Fatalf("Failed to build handler: %v", err)
	}
	router = gin.New()
	handler.RegisterRoutes(router)

	exitCode := m.Run()

	os.RemoveAll(uploadDir)
	os.RemoveAll(workDir)
	sqlDB, err := testDB.DB()
	if err == nil {
		sqlDB.Close()
	}
	os.Exit(exitCode)
}

func clearTables() {
	for _, table := range []string{"scan_samples", "source_fields", "source_tables", "etl_mappings", "scan_report_files"} {
		if err := testDB.Exec("DELETE FROM " + table).Error; err != nil {
			log.Fatalf("Failed to clear %s: %v", table, err)
		}
	}
	if err := testDB.Exec("DELETE FROM lookups WHERE username IS NOT NULL").Error; err != nil {
		log.Fatalf("Failed to clear user lookups: %v", err)
	}
}

func doJSON(method, path, username string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set("Username", username)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doUpload(path, username, fileName string, content []byte) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("file", fileName)
	part.Write(content)
	mw.Close()

	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Username", username)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// uploadSession uploads the sample report and returns the created session.
func uploadSession(t *testing.T, username string) models.UploadResponse {
	t.Helper()
	w := doUpload("/api/upload_scan_report", username, "report.csv", []byte(sampleReportCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetInfo(t *testing.T) {
	w := doJSON("GET", "/api/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, ServiceName, info["name"])
	assert.Equal(t, ServiceVersion, info["version"])
}

func TestProtectedRouteWithoutUsername(t *testing.T) {
	w := doJSON("GET", "/api/get_cdm_versions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeUnauthorized, apiErr.Code)
}

func TestGetFieldTypeIsOpen(t *testing.T) {
	w := doJSON("GET", "/api/get_field_type?type=VARCHAR(255)", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"string"`, w.Body.String())
}

func TestUploadScanReport(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")

	assert.NotEqual(t, uuid.Nil, resp.Mapping.ID)
	assert.Equal(t, "alice", resp.Mapping.Username)
	assert.Equal(t, "alice", resp.Mapping.SchemaName)
	require.Len(t, resp.Schema, 2)
	assert.Equal(t, "persons", resp.Schema[0].Name)
	require.Len(t, resp.Schema[0].Fields, 2)
	assert.Equal(t, "integer", resp.Schema[0].Fields[0].Type)
}

func TestUploadScanReportReplacesPreviousSession(t *testing.T) {
	clearTables()
	first := uploadSession(t, "alice")
	second := uploadSession(t, "alice")
	assert.NotEqual(t, first.Mapping.ID, second.Mapping.ID)

	var count int64
	testDB.Model(&models.EtlMapping{}).Where("username = ?", "alice").Count(&count)
	assert.Equal(t, int64(1), count, "only the latest session survives")
}

func TestUploadScanReportRejectsMalformedReport(t *testing.T) {
	clearTables()
	w := doUpload("/api/upload_scan_report", "alice", "report.csv", []byte("bogus,header\n1,2\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidReport, apiErr.Code)
	assert.Contains(t, apiErr.Message, "non-standard structure of report")
}

func TestUploadScanReportRequiresFilePart(t *testing.T) {
	clearTables()
	w := doJSON("POST", "/api/upload_scan_report", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateSQL(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	w := doJSON("POST", "/api/validate_sql", "alice", models.SQLRequest{SQL: "SELECT person_id FROM persons"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestValidateSQLRejectsBrokenSQL(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	w := doJSON("POST", "/api/validate_sql", "alice", models.SQLRequest{SQL: "SELEC * FORM persons"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidSQL, apiErr.Code)
}

func TestValidateSQLWithoutSession(t *testing.T) {
	clearTables()
	w := doJSON("POST", "/api/validate_sql", "alice", models.SQLRequest{SQL: "SELECT 1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeMappingNotFound, apiErr.Code)
}

func TestViewSQLReturnsColumns(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	w := doJSON("POST", "/api/view_sql", "alice", models.SQLRequest{SQL: "SELECT person_id, gender FROM persons"})
	assert.Equal(t, http.StatusOK, w.Code)

	var columns []models.ColumnInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &columns))
	require.Len(t, columns, 2)
	assert.Equal(t, "person_id", columns[0].Name)
}

func TestGetColumnInfo(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")

	path := fmt.Sprintf("/api/get_column_info?table_name=persons&column_name=gender&etl_mapping_id=%s", resp.Mapping.ID)
	w := doJSON("GET", path, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var info models.ColumnInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "gender", info.ColumnName)
	require.Len(t, info.TopValues, 2)
	assert.Equal(t, "M", info.TopValues[0].Value)
	assert.Equal(t, int64(620), info.TopValues[0].Frequency)
}

func TestGetColumnInfoMissingParams(t *testing.T) {
	clearTables()
	w := doJSON("GET", "/api/get_column_info?table_name=persons", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON("GET", "/api/get_column_info?table_name=persons&column_name=gender&etl_mapping_id=not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCdmVersionsAndSchema(t *testing.T) {
	w := doJSON("GET", "/api/get_cdm_versions", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var versions []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &versions))
	assert.Contains(t, versions, "5.4")

	w = doJSON("GET", "/api/get_cdm_schema?cdm_version=5.4", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var tables []models.TargetTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	assert.NotEmpty(t, tables)

	w = doJSON("GET", "/api/get_cdm_schema?cdm_version=9.9", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupLifecycle(t *testing.T) {
	clearTables()

	payload := models.LookupRequest{
		Name:       "race",
		LookupType: models.LookupTypeSourceToStandard,
		Pairs:      []models.LookupPair{{SourceValue: "W", TargetValue: "8527"}},
	}
	w := doJSON("POST", "/api/lookup", "alice", payload)
	assert.Equal(t, http.StatusCreated, w.Code)

	var saved models.Lookup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotEqual(t, uuid.Nil, saved.ID)

	// It shows up in alice's listing but not bob's.
	w = doJSON("GET", "/api/lookups?lookupType="+models.LookupTypeSourceToStandard, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var items []models.LookupListItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	names := map[string]bool{}
	for _, item := range items {
		names[item.Name] = true
	}
	assert.True(t, names["race"])
	assert.True(t, names["gender"], "seeded lookups stay visible")

	w = doJSON("GET", "/api/lookups?lookupType="+models.LookupTypeSourceToStandard, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	for _, item := range items {
		assert.NotEqual(t, "race", item.Name)
	}

	// SQL is retrievable by id.
	w = doJSON("GET", "/api/lookup/sql?id="+saved.ID.String(), "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var sqlResp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sqlResp))
	assert.Contains(t, sqlResp["sql"], "'8527'")

	// PUT replaces and answers 200.
	payload.Pairs = []models.LookupPair{{SourceValue: "B", TargetValue: "8516"}}
	w = doJSON("PUT", "/api/lookup", "alice", payload)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON("DELETE", "/api/lookup?id="+saved.ID.String(), "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON("GET", "/api/lookup/sql?id="+saved.ID.String(), "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupListRejectsUnknownType(t *testing.T) {
	w := doJSON("GET", "/api/lookups?lookupType=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidEnumValue, apiErr.Code)
}

func TestDeleteSystemLookupIsRejected(t *testing.T) {
	var global models.Lookup
	require.NoError(t, testDB.First(&global, "name = ? AND username IS NULL", "gender").Error)

	w := doJSON("DELETE", "/api/lookup?id="+global.ID.String(), "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoadSavedSourceSchema(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	w := doJSON("GET", "/api/load_saved_source_schema?schema_name=alice", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var tables []models.SourceTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "persons", tables[0].Name)

	w = doJSON("GET", "/api/load_saved_source_schema?schema_name=ghost", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSourceSchemaByScanReport(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")
	require.NotNil(t, resp.Mapping.ScanReportID)

	req := models.CreateSchemaRequest{
		ScanReportID:   *resp.Mapping.ScanReportID,
		ScanReportName: "report.csv",
		CdmVersion:     "5.4",
	}
	w := doJSON("POST", "/api/create_source_schema_by_scan_report", "alice", req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rebuilt models.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rebuilt))
	assert.NotEqual(t, resp.Mapping.ID, rebuilt.Mapping.ID)
	assert.Len(t, rebuilt.Schema, 2)

	// A reference to a report that was never uploaded answers 404.
	req.ScanReportID = uuid.New()
	w = doJSON("POST", "/api/create_source_schema_by_scan_report", "alice", req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestXMLPreview(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	spec := models.MappingSpec{
		MappingItems: []models.MappingItemSpec{{
			SourceTable: "persons",
			TargetTable: "person",
			Mappings: []models.FieldMappingSpec{
				{SourceField: "person_id", TargetField: "person_id"},
			},
		}},
	}
	w := doJSON("POST", "/api/xml_preview", "alice", spec)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var docs map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Contains(t, docs, "persons")
	assert.Contains(t, docs["persons"], "<QueryDefinition>")
	assert.Contains(t, docs["persons"], `<TargetTable name="person">`)
}

func TestGenerateZipXML(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	spec := models.MappingSpec{
		MappingItems: []models.MappingItemSpec{{
			SourceTable: "persons",
			TargetTable: "person",
			Mappings: []models.FieldMappingSpec{
				{SourceField: "person_id", TargetField: "person_id"},
			},
		}},
	}
	w := doJSON("POST", "/api/generate_zip_xml", "alice", spec)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cdm_xml_set.zip")
	assert.NotZero(t, w.Body.Len())
}

func TestGenerateEtlMappingArchive(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")

	req := models.EtlArchiveRequest{
		EtlMappingID: resp.Mapping.ID,
		Name:         "demo",
		CdmVersion:   "5.4",
		Mapping: models.MappingSpec{
			MappingItems: []models.MappingItemSpec{{
				SourceTable: "persons",
				TargetTable: "person",
				Mappings: []models.FieldMappingSpec{
					{SourceField: "gender", TargetField: "gender_concept_id", Lookup: "gender"},
				},
			}},
		},
	}
	w := doJSON("POST", "/api/generate_etl_mapping_archive", "alice", req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "demo.etl")

	// The requested CDM version sticks to the session.
	var mapping models.EtlMapping
	require.NoError(t, testDB.First(&mapping, "id = ?", resp.Mapping.ID).Error)
	require.NotNil(t, mapping.CdmVersion)
	assert.Equal(t, "5.4", *mapping.CdmVersion)

	// Unknown session answers 404.
	req.EtlMappingID = uuid.New()
	w = doJSON("POST", "/api/generate_etl_mapping_archive", "alice", req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadEtlMappingRoundTrip(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")

	req := models.EtlArchiveRequest{
		EtlMappingID: resp.Mapping.ID,
		Name:         "demo",
		CdmVersion:   "5.3",
		Mapping: models.MappingSpec{
			MappingItems: []models.MappingItemSpec{{
				SourceTable: "persons",
				TargetTable: "person",
				Mappings: []models.FieldMappingSpec{
					{SourceField: "person_id", TargetField: "person_id"},
				},
			}},
		},
	}
	w := doJSON("POST", "/api/generate_etl_mapping_archive", "alice", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	archive := w.Body.Bytes()

	// Re-import under another user rebuilds an equivalent session.
	w = doUpload("/api/upload_etl_mapping", "carol", "demo.etl", archive)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var imported models.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imported))
	assert.Equal(t, "carol", imported.Mapping.Username)
	require.NotNil(t, imported.Mapping.CdmVersion)
	assert.Equal(t, "5.3", *imported.Mapping.CdmVersion)
	require.Len(t, imported.Schema, 1)
	assert.Equal(t, "persons", imported.Schema[0].Name)
}

func TestRejectsPathLikeUsername(t *testing.T) {
	for _, hostile := range []string{"../bob", "a/b", `a\b`, ".."} {
		w := doJSON("GET", "/api/get_cdm_versions", hostile, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "username %q must be rejected", hostile)
	}
}

func TestXMLPreviewRejectsPathLikeTableName(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	spec := models.MappingSpec{
		MappingItems: []models.MappingItemSpec{{
			SourceTable: "../../bob/evil",
			TargetTable: "person",
			Mappings: []models.FieldMappingSpec{
				{SourceField: "person_id", TargetField: "person_id"},
			},
		}},
	}
	w := doJSON("POST", "/api/xml_preview", "alice", spec)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEtlMappingArchiveRejectsPathLikeName(t *testing.T) {
	clearTables()
	resp := uploadSession(t, "alice")

	req := models.EtlArchiveRequest{
		EtlMappingID: resp.Mapping.ID,
		Name:         "../sneaky",
		Mapping: models.MappingSpec{
			MappingItems: []models.MappingItemSpec{{
				SourceTable: "persons",
				TargetTable: "person",
				Mappings: []models.FieldMappingSpec{
					{SourceField: "person_id", TargetField: "person_id"},
				},
			}},
		},
	}
	w := doJSON("POST", "/api/generate_etl_mapping_archive", "alice", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateSQLWithoutSchemaRowsKeepsNotFoundCode(t *testing.T) {
	clearTables()

	// A session row with no schema behind it: the failure is a missing
	// schema, not bad SQL.
	mapping := models.EtlMapping{ID: uuid.New(), Username: "alice", SchemaName: "alice"}
	require.NoError(t, testDB.Create(&mapping).Error)

	w := doJSON("POST", "/api/validate_sql", "alice", models.SQLRequest{SQL: "SELECT 1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeNotFound, apiErr.Code)
	assert.NotEqual(t, models.ErrorCodeInvalidSQL, apiErr.Code)
}

func TestGetLookupSQLUnknownTypeCode(t *testing.T) {
	w := doJSON("GET", "/api/lookup/sql?name=gender&lookupType=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidEnumValue, apiErr.Code)
}

func TestSaveSourceSchemaPersistsViews(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	req := models.SaveSchemaRequest{Tables: []models.SchemaTableEdit{
		{Name: "persons", ViewSQL: "SELECT person_id FROM persons"},
		{Name: "visits"},
	}}
	w := doJSON("POST", "/api/save_source_schema_to_db", "alice", req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tables []models.SourceTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	require.Len(t, tables, 2)
	require.NotNil(t, tables[0].ViewSQL)
	assert.Equal(t, "SELECT person_id FROM persons", *tables[0].ViewSQL)
	assert.Nil(t, tables[1].ViewSQL)

	// The stored view now drives XML generation.
	spec := models.MappingSpec{
		MappingItems: []models.MappingItemSpec{{
			SourceTable: "persons",
			TargetTable: "person",
			Mappings: []models.FieldMappingSpec{
				{SourceField: "person_id", TargetField: "person_id"},
			},
		}},
	}
	w = doJSON("POST", "/api/xml_preview", "alice", spec)
	require.Equal(t, http.StatusOK, w.Code)
	var docs map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Contains(t, docs["persons"], "<Query>SELECT person_id FROM persons</Query>")
}

func TestSaveSourceSchemaRejectsBrokenView(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	req := models.SaveSchemaRequest{Tables: []models.SchemaTableEdit{
		{Name: "persons", ViewSQL: "SELEC * FORM persons"},
	}}
	w := doJSON("POST", "/api/save_source_schema_to_db", "alice", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidSQL, apiErr.Code)

	// The broken view was not stored.
	var table models.SourceTable
	require.NoError(t, testDB.First(&table, "name = ?", "persons").Error)
	assert.Nil(t, table.ViewSQL)
}

func TestSaveSourceSchemaUnknownTable(t *testing.T) {
	clearTables()
	uploadSession(t, "alice")

	req := models.SaveSchemaRequest{Tables: []models.SchemaTableEdit{
		{Name: "ghost", ViewSQL: "SELECT person_id FROM persons"},
	}}
	w := doJSON("POST", "/api/save_source_schema_to_db", "alice", req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveSourceSchemaWithoutSession(t *testing.T) {
	clearTables()
	req := models.SaveSchemaRequest{Tables: []models.SchemaTableEdit{
		{Name: "persons", ViewSQL: "SELECT 1"},
	}}
	w := doJSON("POST", "/api/save_source_schema_to_db", "alice", req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeMappingNotFound, apiErr.Code)
}

func TestGetUserSchemaName(t *testing.T) {
	w := doJSON("GET", "/api/get_user_schema_name", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"alice"`, w.Body.String())
}
