package docstore

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Select probes candidates in order and returns the first reachable one.
// The caller keeps the result for the whole process lifetime.
func Select(ctx context.Context, candidates ...Store) (Store, error) {
	var tried []string
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			log.Debugf("docstore backend [%s] not reachable: %s", c.Name(), err)
			tried = append(tried, c.Name())
			continue
		}
		log.Infof("using docstore backend [%s]", c.Name())
		return c, nil
	}
	return nil, fmt.Errorf("%w: tried [%s]", ErrBackendUnavailable, strings.Join(tried, ", "))
}
