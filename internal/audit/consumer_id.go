package audit

import (
	"fmt"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID returns a consumer name unique to this process for the
// Redis consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "licensegate"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), strings.ToLower(ulid.Make().String()))
}
