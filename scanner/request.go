package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/device"
)

// DefaultRequestTimeout bounds a device request when the options set none.
const DefaultRequestTimeout = 10 * time.Second

// Matches reports whether adv satisfies the filters in opts. Options without
// filters match every advertisement.
func Matches(adv device.Advertisement, opts device.RequestOptions) bool {
	if opts.Address != "" && !device.SameAddress(adv.Addr(), opts.Address) {
		return false
	}
	if opts.NamePrefix != "" && !strings.HasPrefix(adv.LocalName(), opts.NamePrefix) {
		return false
	}
	if len(opts.Services) > 0 && !advertisesAny(adv, opts.Services) {
		return false
	}
	return true
}

// Request finds one peripheral for opts.
//
// With filters set, the scan stops at the first matching advertisement. With
// AcceptAll, the whole scan window runs and the connectable device with the strongest
// signal is chosen. Returns device.ErrDeviceNotFound when nothing qualifies.
func (s *Scanner) Request(ctx context.Context, opts device.RequestOptions) (device.Advertisement, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	filtered := opts.HasFilters()
	var found device.Advertisement
	var best device.Advertisement

	s.logger.WithFields(logrus.Fields{
		"address":     opts.Address,
		"name_prefix": opts.NamePrefix,
		"services":    opts.Services,
		"accept_all":  opts.AcceptAll,
	}).Info("Requesting device...")

	err := s.adapter.Scan(scanCtx, false, func(adv device.Advertisement) {
		if found != nil {
			return
		}
		if filtered {
			if Matches(adv, opts) {
				found = adv
				cancel()
			}
			return
		}
		if !adv.Connectable() {
			return
		}
		if best == nil || adv.RSSI() > best.RSSI() {
			best = adv
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil && found == nil {
		return nil, ctxErr
	}

	if found == nil && !filtered {
		found = best
	}
	if found == nil {
		return nil, device.ErrDeviceNotFound
	}

	s.logger.WithFields(logrus.Fields{
		"device":  found.LocalName(),
		"address": found.Addr(),
		"rssi":    found.RSSI(),
	}).Info("Device selected")
	return found, nil
}
