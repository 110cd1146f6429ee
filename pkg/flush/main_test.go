package flush

import (
	"io"
	"os"
	"testing"

	"github.com/parcelops/popsync/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}
