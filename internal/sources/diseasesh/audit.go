package diseasesh

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

const auditTimeLayout = "20060102_150405"

// AuditStore keeps every fetched payload as an append-only JSON file.
type AuditStore struct {
	dir   string
	clock clockwork.Clock
}

// NewAuditStore creates a store rooted at dir.
func NewAuditStore(dir string, clock clockwork.Clock) *AuditStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuditStore{dir: dir, clock: clock}
}

// Save writes payload to <dir>/covid_<kind>_<UTC timestamp>.json and returns
// the path. Existing files are never overwritten.
func (s *AuditStore) Save(kind Kind, payload []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", stageerr.Audit("save raw data", fmt.Errorf("create dir: %w", err))
	}

	stamp := s.clock.Now().UTC().Format(auditTimeLayout)
	base := fmt.Sprintf("covid_%s_%s", kind, stamp)

	for n := 0; ; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", stageerr.Audit("save raw data", err)
		}

		if _, err := f.Write(payload); err != nil {
			_ = f.Close()
			return "", stageerr.Audit("save raw data", fmt.Errorf("write %s: %w", path, err))
		}
		if err := f.Close(); err != nil {
			return "", stageerr.Audit("save raw data", fmt.Errorf("close %s: %w", path, err))
		}
		return path, nil
	}
}
