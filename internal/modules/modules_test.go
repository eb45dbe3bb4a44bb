package modules

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/rag"
)

// fakeStore records calls without doing any embedding.
type fakeStore struct {
	docs    []rag.DocumentEmbedding
	nextID  int
	results []rag.DocumentEmbedding
}

func (s *fakeStore) AddDocument(ctx context.Context, content string) (string, error) {
	return s.AddDocumentWithID(ctx, "doc", content)
}

func (s *fakeStore) AddDocumentWithID(_ context.Context, prefix, content string) (string, error) {
	s.nextID++
	id := prefix + "-" + strconv.Itoa(s.nextID)
	s.docs = append(s.docs, rag.DocumentEmbedding{ID: id, Content: content})
	return id, nil
}

func (s *fakeStore) UpsertDocument(_ context.Context, id, content, metadata string) error {
	s.docs = append(s.docs, rag.DocumentEmbedding{ID: id, Content: content, Metadata: metadata})
	return nil
}

func (s *fakeStore) SearchDocuments(_ context.Context, _ string, _ int) ([]rag.DocumentEmbedding, error) {
	return s.results, nil
}

func TestFileSystemModuleReadWriteList(t *testing.T) {
	fs := afero.NewMemMapFs()
	mod := NewFileSystemModule(fs)
	ctx := context.Background()

	out, err := mod.HandleAction(ctx, nil, "write", []string{"notes/a.txt", "hello"})
	require.NoError(t, err)
	assert.Equal(t, "File written successfully", out)

	out, err = mod.HandleAction(ctx, nil, "read", []string{"notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = mod.HandleAction(ctx, nil, "list_directory", []string{"notes"})
	require.NoError(t, err)
	assert.Contains(t, out, "Files found:")
	assert.Contains(t, out, "1. a.txt")
}

func TestFileSystemModuleReadMultiple(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.txt", []byte("one"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "b.txt", []byte("two"), 0o644))
	mod := NewFileSystemModule(fs)

	out, err := mod.HandleAction(context.Background(), nil, "read_multiple", []string{"a.txt,b.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two")
}

func TestShellModuleAllowList(t *testing.T) {
	mod := NewShellModule([]string{"echo"})
	ctx := context.Background()

	out, err := mod.HandleAction(ctx, nil, "run", []string{"echo", "hi"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi")

	_, err = mod.HandleAction(ctx, nil, "run", []string{"rm", "-rf", "/tmp/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestManagerBuildsConfiguredModules(t *testing.T) {
	mgr := NewManager([]config.ModuleConfig{
		{Name: "fs"},
		{Name: "rag"},
		{Name: "does-not-exist"},
	})

	_, ok := mgr.Get("fs")
	assert.True(t, ok)
	_, ok = mgr.Get("rag")
	assert.True(t, ok)
	_, ok = mgr.Get("does-not-exist")
	assert.False(t, ok)
}

func TestManagerDescribeAllListsActions(t *testing.T) {
	mgr := NewManagerWithModules(NewVectorStoreModule(), NewMemoriesModule())
	desc := mgr.DescribeAll()
	assert.Contains(t, desc, "rag (actions: search (1 args)")
	assert.Contains(t, desc, "memories (actions: insert (1 args)")
	assert.Contains(t, desc, "recall (1 args)")
}

func TestVectorStoreModuleSearchFormatting(t *testing.T) {
	store := &fakeStore{results: []rag.DocumentEmbedding{
		{ID: "doc-1", Content: "first"},
		{ID: "doc-2", Content: "second"},
	}}
	mod := NewVectorStoreModule()

	out, err := mod.HandleAction(context.Background(), store, "search", []string{"anything"})
	require.NoError(t, err)
	assert.Equal(t, "Documents found:\n1: first\n2: second", out)
}

func TestVectorStoreModuleIndexReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("the report body"), 0o644))
	store := &fakeStore{}
	mod := NewVectorStoreModule()

	out, err := mod.HandleAction(context.Background(), store, "index", []string{path})
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "indexed successfully")
	require.Len(t, store.docs, 1)
	assert.Equal(t, "the report body", store.docs[0].Content)
}

func TestVectorStoreModuleIndexMissingFile(t *testing.T) {
	mod := NewVectorStoreModule()
	_, err := mod.HandleAction(context.Background(), &fakeStore{}, "index",
		[]string{filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestVectorStoreModuleIndexMultipleSplitsOnComma(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(first, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("beta"), 0o644))
	store := &fakeStore{}
	mod := NewVectorStoreModule()

	out, err := mod.HandleAction(context.Background(), store, "index_multiple",
		[]string{first + "," + second})
	require.NoError(t, err)
	assert.Contains(t, out, "indexed successfully")
	require.Len(t, store.docs, 2)
	assert.Equal(t, "alpha", store.docs[0].Content)
	assert.Equal(t, "beta", store.docs[1].Content)
}

func TestVectorStoreModuleSearchEmpty(t *testing.T) {
	mod := NewVectorStoreModule()
	out, err := mod.HandleAction(context.Background(), &fakeStore{}, "search", []string{"anything"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant documents found.", out)
}

func TestMemoriesModuleInsertUsesMemPrefix(t *testing.T) {
	store := &fakeStore{}
	mod := NewMemoriesModule()

	out, err := mod.HandleAction(context.Background(), store, "insert", []string{"remember", "this"})
	require.NoError(t, err)
	assert.Equal(t, "Memory inserted successfully.", out)
	require.Len(t, store.docs, 1)
	assert.Equal(t, "mem-1", store.docs[0].ID)
	assert.Equal(t, "remember this", store.docs[0].Content)
}

func TestMemoriesModuleRecallFiltersNonMemories(t *testing.T) {
	store := &fakeStore{results: []rag.DocumentEmbedding{
		{ID: "doc-3", Content: "plain document"},
		{ID: "mem-1", Content: "a memory"},
	}}
	mod := NewMemoriesModule()

	out, err := mod.HandleAction(context.Background(), store, "recall", []string{"memory"})
	require.NoError(t, err)
	assert.Equal(t, "Memories found:\n1: a memory", out)
}

func TestMemoriesModuleRecallNothingFound(t *testing.T) {
	store := &fakeStore{results: []rag.DocumentEmbedding{{ID: "doc-1", Content: "x"}}}
	mod := NewMemoriesModule()

	out, err := mod.HandleAction(context.Background(), store, "recall", []string{"memory"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant memories found.", out)
}

func TestSSHModuleRequiresConnection(t *testing.T) {
	mod := NewSSHModule()
	ctx := context.Background()

	_, err := mod.HandleAction(ctx, nil, "run", []string{"ls"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	out, err := mod.HandleAction(ctx, nil, "check_connection", nil)
	require.NoError(t, err)
	assert.Equal(t, "Not connected.", out)
}

func TestSSHModuleConnectParsesParams(t *testing.T) {
	mod := NewSSHModule()
	out, err := mod.HandleAction(context.Background(), nil, "connect",
		[]string{"host=example.com", "user=deploy", "key=" + filepath.Join(t.TempDir(), "missing_key")})
	require.NoError(t, err)
	assert.Contains(t, out, "SSH session info stored")

	out, err = mod.HandleAction(context.Background(), nil, "check_connection", nil)
	require.NoError(t, err)
	assert.Equal(t, "Connected to deploy@example.com", out)

	out, err = mod.HandleAction(context.Background(), nil, "disconnect", nil)
	require.NoError(t, err)
	assert.Equal(t, "SSH session disconnected.", out)
}

func TestSSHModuleConnectMissingHost(t *testing.T) {
	mod := NewSSHModule()
	_, err := mod.HandleAction(context.Background(), nil, "connect", []string{"user=deploy"})
	require.Error(t, err)
}

func TestHTTPModuleHeaderParsing(t *testing.T) {
	mod := NewHTTPModule()
	_, err := mod.HandleAction(context.Background(), nil, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}
