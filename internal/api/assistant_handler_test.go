package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAssistant(t *testing.T) {
	e := newEnv(t)

	rec := e.serve(t, e.h.CreateAssistant, http.MethodPost, "/api/assistant/create", map[string]string{"name": "Helper", "instructions": "Be brief."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "asst_1", decode(t, rec)["assistantId"])
	require.Len(t, e.ai.created, 1)
	assert.Equal(t, "Helper", *e.ai.created[0].Name)

	rec = e.serve(t, e.h.CreateAssistant, http.MethodPost, "/api/assistant/create", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Chat Assistant", *e.ai.created[1].Name)
}

func TestUploadAndListFiles(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "agenda.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("monday: standup"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := e.newRequest(t, http.MethodPost, "/api/files/upload", buf.String())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.h.UploadFile(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	file := decode(t, rec)["file"].(map[string]any)
	assert.Equal(t, "agenda.txt", file["filename"])
	assert.EqualValues(t, 15, file["bytes"])
	assert.Equal(t, "assistants", file["purpose"])

	rec = e.serve(t, e.h.ListFiles, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["files"], 1)
}

func TestUploadRequiresFile(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	req := e.newRequest(t, http.MethodPost, "/api/files/upload", buf.String())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.h.UploadFile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["error"])
}
