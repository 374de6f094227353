package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STOCKROOM_TEST_MODE") == "" {
			_ = os.Setenv("STOCKROOM_TEST_MODE", "1")
		}
	})
}
