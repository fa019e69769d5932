package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

func TestBucketStoreEmulatorLifecycle(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("LAKE_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set LAKE_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}

	emulatorHost := strings.TrimSpace(os.Getenv("LAKE_GCS_EMULATOR_HOST"))
	if emulatorHost == "" {
		emulatorHost = strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	}
	if emulatorHost == "" {
		emulatorHost = "http://127.0.0.1:4443"
	}
	emulatorHost = strings.TrimRight(emulatorHost, "/")

	if !isEmulatorReachable(t, emulatorHost) {
		t.Skipf("storage emulator not reachable at %s", emulatorHost)
	}

	bucketName := fmt.Sprintf("lake-it-%d", time.Now().UnixNano())
	createBucketIfMissing(t, emulatorHost, bucketName)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	ctx := context.Background()
	bs, err := NewBucketStore(ctx, log, ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: emulatorHost,
	})
	if err != nil {
		t.Fatalf("NewBucketStore: %v", err)
	}
	defer bs.Close()

	root := "gs://" + bucketName + "/in"
	keyA := store.Join(root, "song_data", "A", "a.json")
	keyB := store.Join(root, "song_data", "B", "b.json")
	other := store.Join(root, "song_data", "notes.txt")
	for key, body := range map[string]string{keyA: "alpha", keyB: "beta", other: "skip"} {
		w, err := bs.Create(ctx, key)
		if err != nil {
			t.Fatalf("Create(%s): %v", key, err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %s: %v", key, err)
		}
	}

	keys, err := bs.Glob(ctx, store.Join(root, "song_data/*/*.json"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if !slices.Equal(keys, []string{keyA, keyB}) {
		t.Fatalf("Glob: got=%v", keys)
	}

	rc, err := bs.Open(ctx, keyA)
	if err != nil {
		t.Fatalf("Open(%s): %v", keyA, err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != "alpha" {
		t.Fatalf("download body: want=%q got=%q err=%v", "alpha", string(body), err)
	}

	if _, err := bs.Open(ctx, store.Join(root, "missing")); err == nil {
		t.Fatalf("Open(missing): expected error")
	}

	if err := bs.DeletePrefix(ctx, store.Join(root, "song_data")); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	keys, err = bs.List(ctx, store.Join(root, "song_data"))
	if err != nil {
		t.Fatalf("List after delete-prefix: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty prefix after DeletePrefix; keys=%v", keys)
	}
	ok, err := bs.Exists(ctx, keyB)
	if err != nil || ok {
		t.Fatalf("Exists after delete: ok=%v err=%v", ok, err)
	}
}

func isEmulatorReachable(t *testing.T, emulatorHost string) bool {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(emulatorHost + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucketIfMissing(t *testing.T, emulatorHost string, bucket string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": bucket})
	if err != nil {
		t.Fatalf("json.Marshal(bucket): %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(
		http.MethodPost,
		emulatorHost+"/storage/v1/b?project=local-dev",
		bytes.NewReader(payload),
	)
	if err != nil {
		t.Fatalf("http.NewRequest(create bucket): %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
}
