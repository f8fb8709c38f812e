package materializer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/puppyone-ai/puppyone-sub007/internal/logging"
	"github.com/puppyone-ai/puppyone-sub007/internal/partition"
	"github.com/puppyone-ai/puppyone-sub007/internal/rebuild"
	"github.com/puppyone-ai/puppyone-sub007/internal/services"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/internal/templates"
	"github.com/puppyone-ai/puppyone-sub007/pkg/models"
	"github.com/puppyone-ai/puppyone-sub007/pkg/structpath"
)

const mib = 1024 * 1024

type memSource struct {
	pkgs  map[string]*models.TemplatePackage
	files map[string][]byte
}

func (m *memSource) Load(ctx context.Context, templateID string) (*models.TemplatePackage, error) {
	pkg, ok := m.pkgs[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, templateID)
	}
	return pkg, nil
}

func (m *memSource) ReadResource(ctx context.Context, templateID, path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("resource %s not found", path)
	}
	return data, nil
}

type storedObject struct {
	Key         string
	Name        string
	ContentType string
	Content     []byte
}

// fakeStorage records what the storage client writes.
type fakeStorage struct {
	mu      sync.Mutex
	objects []storedObject
	status  int
}

func (f *fakeStorage) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/chunk/direct", func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			io.WriteString(w, "storage quota exceeded")
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, _ := base64.StdEncoding.DecodeString(body["content"])
		f.add(storedObject{
			Key:         storage.ResourceKey(body["user_id"], body["block_id"], body["version_id"]),
			Name:        body["file_name"],
			ContentType: body["content_type"],
			Content:     content,
		})
		json.NewEncoder(w).Encode(map[string]any{"etag": "etag-" + body["file_name"], "size": len(content)})
	})
	mux.HandleFunc("/upload/file/direct", func(w http.ResponseWriter, r *http.Request) {
		content, _ := io.ReadAll(r.Body)
		q := r.URL.Query()
		f.add(storedObject{
			Key:         q.Get("block_id") + "/" + q.Get("version_id"),
			Name:        q.Get("file_name"),
			ContentType: r.Header.Get("Content-Type"),
			Content:     content,
		})
		json.NewEncoder(w).Encode(map[string]string{"etag": "file-etag"})
	})
	return mux
}

func (f *fakeStorage) add(o storedObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, o)
}

func (f *fakeStorage) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.objects))
	for i, o := range f.objects {
		out[i] = o.Name
	}
	return out
}

func (f *fakeStorage) last() storedObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[len(f.objects)-1]
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Save(ctx context.Context, inst *models.Instantiation) error {
	return m.Called(ctx, inst).Error(0)
}

type fixture struct {
	loader *Loader
	store  *fakeStorage
	source *memSource
}

func newFixture(t *testing.T, threshold int, recorder Recorder) *fixture {
	t.Helper()
	store := &fakeStorage{}
	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)

	logger := logging.NewNop()
	source := &memSource{pkgs: map[string]*models.TemplatePackage{}, files: map[string][]byte{}}
	loader := NewLoader(Options{
		Source:           source,
		Transfer:         storage.NewClient(storage.Config{BaseURL: srv.URL, DevToken: "dev", PartConcurrency: 2}, logger),
		Partitioner:      partition.New(0),
		Rebuilder:        rebuild.NewOrchestrator(services.NewDeferredEmbedder(logger), logger),
		Recorder:         recorder,
		StorageThreshold: threshold,
		Logger:           logger,
	})
	loader.newVersion = func() string { return "v1" }
	return &fixture{loader: loader, store: store, source: source}
}

func newPackage(resources ...models.ResourceDescriptor) *models.TemplatePackage {
	return &models.TemplatePackage{
		Metadata: models.TemplateMetadata{ID: "tpl", Version: "1.0.0"},
		Workflow: models.WorkflowDefinition{
			Blocks: []models.Block{
				{"id": "blk", "type": "text", "data": map[string]any{"content": ""}},
				{"id": "other", "type": "llm", "data": map[string]any{"prompt": "hi"}},
			},
			Edges: []models.Edge{{"id": "e1", "source": "blk", "target": "other"}},
		},
		Resources: models.ResourceManifest{Resources: resources},
	}
}

func field(t *testing.T, wf *models.WorkflowDefinition, blockID, path string) any {
	t.Helper()
	block, ok := wf.FindBlock(blockID)
	require.True(t, ok)
	v, ok := structpath.Get(map[string]any(block), path)
	require.True(t, ok, "missing %s", path)
	return v
}

// jsonOfLength returns a JSON array of exactly n bytes.
func jsonOfLength(n int) []byte {
	return []byte(`["` + strings.Repeat("a", n-4) + `"]`)
}

func TestStorageThresholdBoundary(t *testing.T) {
	const threshold = 64
	resource := models.ResourceDescriptor{
		ID:          "notes",
		Type:        models.ResourceTypeExternalStorage,
		BlockID:     "blk",
		MountedPath: "data.content",
		Source:      models.ResourceSource{Path: "notes.json", Format: models.SourceFormatStructured},
	}

	t.Run("one byte under is inline", func(t *testing.T) {
		f := newFixture(t, threshold, nil)
		f.source.files["notes.json"] = jsonOfLength(threshold - 1)

		wf, err := f.loader.InstantiateTemplate(context.Background(), newPackage(resource), "u1", "w1", nil)
		require.NoError(t, err)

		assert.Equal(t, models.StorageClassInternal, field(t, wf, "blk", "data.storage_class"))
		assert.Equal(t, []any{strings.Repeat("a", threshold-5)}, field(t, wf, "blk", "data.content"))
		assert.Empty(t, f.store.names())
	})

	t.Run("exactly at threshold is external", func(t *testing.T) {
		f := newFixture(t, threshold, nil)
		f.source.files["notes.json"] = jsonOfLength(threshold)

		wf, err := f.loader.InstantiateTemplate(context.Background(), newPackage(resource), "u1", "w1", nil)
		require.NoError(t, err)

		assert.Equal(t, models.StorageClassExternal, field(t, wf, "blk", "data.storage_class"))
		assert.Equal(t, true, field(t, wf, "blk", "data.isExternalStorage"))
		assert.Equal(t, "u1/blk/v1", field(t, wf, "blk", "data.external_metadata.resource_key"))
		assert.Equal(t, "structured", field(t, wf, "blk", "data.external_metadata.content_type"))
		assert.Equal(t, []string{"part_000000.jsonl", storage.ManifestName}, f.store.names())
	})
}

func TestInstantiateLargeTextResource(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["corpus.txt"] = []byte(strings.Repeat("x", 2*mib+mib/2))
	pkg := newPackage(models.ResourceDescriptor{
		ID:          "corpus",
		Type:        models.ResourceTypeExternalStorage,
		BlockID:     "blk",
		MountedPath: "data.content",
		Source:      models.ResourceSource{Path: "corpus.txt", Format: models.SourceFormatText},
	})

	wf, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	require.NoError(t, err)

	assert.Equal(t, "u1/blk/v1", field(t, wf, "blk", "data.external_metadata.resource_key"))
	assert.Equal(t, models.StorageClassExternal, field(t, wf, "blk", "data.storage_class"))

	names := f.store.names()
	require.Len(t, names, 4)
	assert.ElementsMatch(t, []string{"part_000000.txt", "part_000001.txt", "part_000002.txt"}, names[:3])
	assert.Equal(t, storage.ManifestName, names[3])

	var manifest storage.Manifest
	require.NoError(t, json.Unmarshal(f.store.last().Content, &manifest))
	assert.Equal(t, storage.FormatPartitioned, manifest.Format)
	require.Len(t, manifest.Parts, 3)
	assert.Equal(t, int64(mib), manifest.Parts[0].Size)
	assert.Equal(t, int64(mib), manifest.Parts[1].Size)
	assert.Equal(t, int64(mib/2), manifest.Parts[2].Size)
	assert.Equal(t, "etag-part_000002.txt", manifest.Parts[2].ETag)
}

func vectorResource(required *models.EmbeddingModelRequirement) models.ResourceDescriptor {
	return models.ResourceDescriptor{
		ID:           "faq",
		Type:         models.ResourceTypeVectorCollection,
		BlockID:      "blk",
		MountedPaths: map[string]string{"content": "data.content"},
		Source:       models.ResourceSource{Path: "faq.json", Format: models.SourceFormatStructured},
		Target: models.ResourceTarget{
			VectorHandling: &models.VectorHandling{
				KeyPath:   []models.PathSegment{{Type: models.PathSegmentKey, Value: "question"}},
				ValuePath: []models.PathSegment{{Type: models.PathSegmentKey, Value: "answer"}},
			},
			EmbeddingModel: required,
		},
	}
}

const faq = `[{"question": "q1", "answer": "a1"}, {"question": "q2", "answer": "a2"}, {"question": "q3"}]`

func TestVectorCollectionWithoutDeclaredModel(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["faq.json"] = []byte(faq)
	available := []models.Model{{ID: "bge-m3", Provider: "ollama", Type: models.ModelTypeEmbedding}}

	wf, err := f.loader.InstantiateTemplate(context.Background(), newPackage(vectorResource(nil)), "u1", "w1", available)
	require.NoError(t, err)

	assert.Equal(t, "pending", field(t, wf, "blk", "data.indexingList[0].status"))
	assert.Equal(t, "", field(t, wf, "blk", "data.indexingList[0].index_name"))

	entries, ok := field(t, wf, "blk", "data.indexingList[0].entries").([]any)
	require.True(t, ok)
	require.Len(t, entries, 3)
	first := entries[0].(map[string]any)
	assert.Equal(t, "q1", first["content"])
	assert.Equal(t, map[string]any{"id": 0, "retrieval_content": "a1"}, first["metadata"])
	assert.Equal(t, map[string]any{"id": 2}, entries[2].(map[string]any)["metadata"])

	assert.Equal(t, map[string]any{
		"collection_name": "user_u1_workspace_w1_block_blk",
		"model_id":        "bge-m3",
		"provider":        "ollama",
	}, field(t, wf, "blk", "data.indexingList[0].collection_configs"))

	assert.Equal(t, models.StorageClassInternal, field(t, wf, "blk", "data.storage_class"))
	content, ok := field(t, wf, "blk", "data.content").([]any)
	require.True(t, ok)
	assert.Len(t, content, 3)
}

func TestVectorCollectionManualSelectionStaysPending(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["faq.json"] = []byte(faq)
	required := &models.EmbeddingModelRequirement{ModelID: "voyage-2", Provider: "voyage", FallbackStrategy: models.FallbackManual}
	available := []models.Model{{ID: "bge-m3", Provider: "ollama", Type: models.ModelTypeEmbedding}}

	wf, err := f.loader.InstantiateTemplate(context.Background(), newPackage(vectorResource(required)), "u1", "w1", available)
	require.NoError(t, err)

	assert.Equal(t, "pending", field(t, wf, "blk", "data.indexingList[0].status"))
	assert.Equal(t, []any{}, field(t, wf, "blk", "data.indexingList[0].entries"))
	assert.Equal(t, map[string]any{}, field(t, wf, "blk", "data.indexingList[0].collection_configs"))
	assert.Equal(t, []any{map[string]any{"type": "key", "value": "question"}},
		field(t, wf, "blk", "data.indexingList[0].key_path"))
}

func TestFileResource(t *testing.T) {
	f := newFixture(t, 0, nil)
	pdf := []byte("%PDF-1.4 tiny")
	f.source.files["docs/handbook.pdf"] = pdf
	pkg := newPackage(models.ResourceDescriptor{
		ID:          "handbook",
		Type:        models.ResourceTypeFile,
		BlockID:     "blk",
		MountedPath: "data.content",
		Source:      models.ResourceSource{Path: "docs/handbook.pdf", Format: models.SourceFormatBinary},
	})

	wf, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	require.NoError(t, err)

	require.Equal(t, []string{"handbook.pdf", storage.ManifestName}, f.store.names())
	assert.Equal(t, pdf, f.store.objects[0].Content)
	assert.Equal(t, "application/pdf", f.store.objects[0].ContentType)
	assert.Equal(t, "blk/v1", f.store.objects[0].Key)

	var manifest FilesManifest
	require.NoError(t, json.Unmarshal(f.store.last().Content, &manifest))
	assert.Equal(t, FilesManifest{
		Format: "files",
		Files: []FileEntry{{
			Name: "handbook.pdf", Mime: "application/pdf", Size: int64(len(pdf)), ETag: "file-etag", FileType: "pdf",
		}},
	}, manifest)

	assert.Equal(t, models.StorageClassExternal, field(t, wf, "blk", "data.storage_class"))
	assert.Equal(t, map[string]any{"resource_key": "u1/blk/v1", "content_type": "files"},
		field(t, wf, "blk", "data.external_metadata"))
	assert.Equal(t, []any{map[string]any{
		"name":         "handbook.pdf",
		"file_type":    "pdf",
		"mime_type":    "application/pdf",
		"size":         len(pdf),
		"resource_key": "u1/blk/v1",
		"status":       "pending_prefetch",
	}}, field(t, wf, "blk", "data.content"))
}

func TestInlineClearsStaleExternalMetadata(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["note.txt"] = []byte("short note")
	pkg := newPackage(models.ResourceDescriptor{
		ID:          "note",
		Type:        models.ResourceTypeExternalStorage,
		BlockID:     "blk",
		MountedPath: "content",
		Source:      models.ResourceSource{Path: "note.txt", Format: models.SourceFormatText},
	})
	pkg.Workflow.Blocks[0]["data"].(map[string]any)["external_metadata"] = map[string]any{"resource_key": "stale"}

	wf, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	require.NoError(t, err)

	block, _ := wf.FindBlock("blk")
	_, present := structpath.Get(map[string]any(block), "data.external_metadata")
	assert.False(t, present)
	assert.Equal(t, "short note", field(t, wf, "blk", "data.content"))
	assert.Equal(t, false, field(t, wf, "blk", "data.isExternalStorage"))
}

func TestMissingBlockAbortsInstantiation(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["a.txt"] = []byte("a")
	f.source.files["b.txt"] = []byte("b")
	pkg := newPackage(
		models.ResourceDescriptor{ID: "ok", Type: models.ResourceTypeExternalStorage, BlockID: "blk",
			Source: models.ResourceSource{Path: "a.txt"}},
		models.ResourceDescriptor{ID: "dangling", Type: models.ResourceTypeExternalStorage, BlockID: "ghost",
			Source: models.ResourceSource{Path: "b.txt"}},
	)

	wf, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	assert.Nil(t, wf)

	var resErr *ResourceError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "dangling", resErr.ResourceID)

	var resolution *ResourceResolutionError
	require.True(t, errors.As(err, &resolution))
	assert.Equal(t, "ghost", resolution.BlockID)
}

func TestTransferFailureNamesResource(t *testing.T) {
	f := newFixture(t, 8, nil)
	f.store.status = http.StatusInsufficientStorage
	f.source.files["big.txt"] = []byte("more than eight bytes")
	pkg := newPackage(models.ResourceDescriptor{ID: "big", Type: models.ResourceTypeExternalStorage, BlockID: "blk",
		Source: models.ResourceSource{Path: "big.txt"}})

	_, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	require.Error(t, err)

	var transferErr *storage.TransferError
	require.True(t, errors.As(err, &transferErr))
	assert.Contains(t, err.Error(), "resource big")
	assert.Contains(t, err.Error(), "507")
	assert.Contains(t, err.Error(), "storage quota exceeded")
}

func TestOriginalPackageIsNotMutated(t *testing.T) {
	f := newFixture(t, 0, nil)
	f.source.files["faq.json"] = []byte(faq)
	pkg := newPackage(vectorResource(nil))
	before, err := json.Marshal(pkg)
	require.NoError(t, err)

	available := []models.Model{{ID: "bge-m3", Provider: "ollama", Type: models.ModelTypeEmbedding}}
	for _, user := range []string{"u1", "u2"} {
		_, err := f.loader.InstantiateTemplate(context.Background(), pkg, user, "w1", available)
		require.NoError(t, err)
	}

	after, err := json.Marshal(pkg)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestInstantiateByIDRecordsOutcome(t *testing.T) {
	recorder := new(MockRecorder)
	recorder.On("Save", mock.Anything, mock.MatchedBy(func(inst *models.Instantiation) bool {
		return inst.TemplateID == "tpl" && inst.TemplateVersion == "1.0.0" && inst.UserID == "u1" &&
			len(inst.Resources) == 1 && inst.Resources[0].StorageClass == models.StorageClassInternal
	})).Return(nil)

	f := newFixture(t, 0, recorder)
	f.source.files["note.txt"] = []byte("hello")
	f.source.pkgs["tpl"] = newPackage(models.ResourceDescriptor{ID: "note", Type: models.ResourceTypeExternalStorage,
		BlockID: "blk", Source: models.ResourceSource{Path: "note.txt"}})

	result, err := f.loader.InstantiateByID(context.Background(), "tpl", "u1", "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", field(t, result.Workflow, "blk", "data.content"))
	assert.NotEmpty(t, result.Instantiation.ID)
	recorder.AssertExpectations(t)

	_, err = f.loader.InstantiateByID(context.Background(), "missing", "u1", "w1", nil)
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
}

func TestFileType(t *testing.T) {
	tests := []struct {
		name, mime, want string
	}{
		{"report.pdf", "", "pdf"},
		{"photo.JPG", "", "image"},
		{"song.mp3", "", "audio"},
		{"clip.mp4", "", "video"},
		{"sheet.xlsx", "", "spreadsheet"},
		{"letter.docx", "", "document"},
		{"bundle.zip", "", "archive"},
		{"blob", "image/png", "image"},
		{"blob", "text/plain; charset=utf-8", "text"},
		{"blob", "application/octet-stream", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fileType(tt.name, tt.mime), tt.name)
	}

	assert.Equal(t, "application/x-custom", detectMime("application/x-custom", "a.pdf", nil))
	assert.Equal(t, "application/pdf", detectMime("", "a.pdf", nil))
	assert.Equal(t, "text/plain; charset=utf-8", detectMime("", "noext", []byte("plain words")))
}

func TestStructuredTrailingBytesKeptAsText(t *testing.T) {
	f := newFixture(t, 0, nil)
	raw := `[{"q":"a"}]]`
	f.source.files["rows.json"] = []byte(raw)
	pkg := newPackage(models.ResourceDescriptor{
		ID:          "rows",
		Type:        models.ResourceTypeExternalStorage,
		BlockID:     "blk",
		MountedPath: "data.content",
		Source:      models.ResourceSource{Path: "rows.json", Format: models.SourceFormatStructured},
	})

	wf, err := f.loader.InstantiateTemplate(context.Background(), pkg, "u1", "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, raw, field(t, wf, "blk", "data.content"))
	assert.Equal(t, models.StorageClassInternal, field(t, wf, "blk", "data.storage_class"))
}
