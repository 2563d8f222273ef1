package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/notify"
)

// ReadCommand asks FORA and Acare characteristics for a fresh value.
var ReadCommand = []byte{0x02}

// StartCommandSequences are tried in order after a FORA subscription starts. The
// first sequence whose writes all succeed ends the search.
var StartCommandSequences = [][][]byte{
	{{0x01}},
	{{0x00}},
	{{0x01, 0x00}},
	{{0x00, 0x01}},
	{{0x57, 0x01}},
	{{0xAA, 0x55}},
	{{0x01}, {0x01}},
	{{0xFD, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x02}},
}

// StartHeartRate subscribes to Heart Rate Measurement notifications.
func (s *Session) StartHeartRate(ctx context.Context, char device.Characteristic, callback func(codec.HeartRate)) (notify.Stopper, error) {
	stop, err := notify.Subscribe(ctx, char, notify.Infallible(codec.ParseHeartRate), callback, s.notifyOptions("heart-rate")...)
	if err != nil {
		return nil, err
	}
	return s.track(stop), nil
}

// StartPulseOximeter subscribes to PLX measurement notifications.
func (s *Session) StartPulseOximeter(ctx context.Context, char device.Characteristic, callback func(codec.PulseOximeter)) (notify.Stopper, error) {
	stop, err := notify.Subscribe(ctx, char, notify.Infallible(codec.ParsePulseOximeter), callback, s.notifyOptions("pulse-oximeter")...)
	if err != nil {
		return nil, err
	}
	return s.track(stop), nil
}

// StartForaCustom subscribes to the FORA custom characteristic, then, when the
// characteristic is writable and start commands are enabled, writes the start
// sequences. Failed start commands never fail the subscription.
func (s *Session) StartForaCustom(ctx context.Context, char device.Characteristic, callback func(codec.VendorCustom)) (notify.Stopper, error) {
	stop, err := notify.Subscribe(ctx, char, notify.Infallible(codec.ParseForaCustom), callback, s.notifyOptions("fora-custom")...)
	if err != nil {
		return nil, err
	}
	stop = s.track(stop)

	s.logger.WithFields(logrus.Fields{
		"char_uuid":  char.UUID(),
		"properties": device.PropertyNames(char.Properties()),
	}).Info("FORA notifications started")

	if !s.opts.SendStartCommands {
		return stop, nil
	}
	if !device.CanWrite(char) {
		s.logger.WithField("char_uuid", char.UUID()).Warn("Characteristic is not writable, skipping start commands")
		return stop, nil
	}
	if _, err := s.writeStartCommands(ctx, char); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Warn("All start commands failed")
	}
	return stop, nil
}

// writeStartCommands returns the index of the first sequence written in full.
func (s *Session) writeStartCommands(ctx context.Context, char device.Characteristic) (int, error) {
	var lastErr error
	for i, seq := range StartCommandSequences {
		if err := s.writeSequence(ctx, char, seq); err != nil {
			if ctx.Err() != nil {
				return -1, ctx.Err()
			}
			s.logger.WithFields(logrus.Fields{
				"sequence": i + 1,
				"error":    err,
			}).Debug("Start command sequence failed")
			lastErr = err
			continue
		}
		s.logger.WithField("sequence", i+1).Info("Start command sequence written, waiting for device")
		return i, nil
	}
	return -1, fmt.Errorf("no start command sequence accepted: %w", lastErr)
}

func (s *Session) writeSequence(ctx context.Context, char device.Characteristic, seq [][]byte) error {
	for _, cmd := range seq {
		if err := char.Write(ctx, cmd, withResponse(char)); err != nil {
			return err
		}
		s.logger.WithField("raw_hex", codec.HexString(cmd)).Debug("Wrote start command")
		if err := sleep(ctx, s.opts.StartCommandDelay); err != nil {
			return err
		}
	}
	return nil
}

// StartAcareCustom subscribes to the Acare data characteristic. Every notification
// is decoded on its own with the vendor layouts. With stream set, notifications
// carrying a BerryMed sync byte, and the chunks completing a started packet, are
// reassembled into 5-byte packets instead. The command and secondary
// characteristics are optional and only reported.
func (s *Session) StartAcareCustom(ctx context.Context, data, command, secondary device.Characteristic, callback func(codec.VendorCustom), stream bool) (notify.Stopper, error) {
	if callback == nil {
		return nil, notify.ErrNilHandler
	}

	frame := func(raw []byte) []codec.VendorCustom {
		m := codec.ParseVendor(raw)
		if !m.Matched() {
			s.logger.WithField("raw_hex", m.RawHex).Warn("Unrecognised vendor frame")
		}
		return []codec.VendorCustom{m}
	}
	parse := notify.Infallible(frame)
	if stream {
		dec := codec.NewStreamDecoder(0)
		parse = notify.Infallible(func(raw []byte) []codec.VendorCustom {
			if codec.LooksLikeBerryMedStream(raw) || dec.Pending() {
				return dec.Feed(raw)
			}
			return frame(raw)
		})
	}

	deliver := func(ms []codec.VendorCustom) {
		for _, m := range ms {
			callback(m)
		}
	}
	stop, err := notify.Subscribe(ctx, data, parse, deliver, s.notifyOptions("acare-custom")...)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"char_uuid": data.UUID(),
		"command":   command != nil,
		"secondary": secondary != nil,
		"stream":    stream,
	}).Info("Acare notifications started")
	return s.track(stop), nil
}

// ReadHeartRateOnce reads and decodes one heart-rate value.
func (s *Session) ReadHeartRateOnce(ctx context.Context, char device.Characteristic) (codec.HeartRate, error) {
	raw, err := readOnce(ctx, char)
	if err != nil {
		return codec.HeartRate{}, err
	}
	return codec.ParseHeartRate(raw), nil
}

// ReadPulseOximeterOnce reads and decodes one PLX value.
func (s *Session) ReadPulseOximeterOnce(ctx context.Context, char device.Characteristic) (codec.PulseOximeter, error) {
	raw, err := readOnce(ctx, char)
	if err != nil {
		return codec.PulseOximeter{}, err
	}
	return codec.ParsePulseOximeter(raw), nil
}

// ReadForaCustomOnce sends the read command when the characteristic is writable,
// then reads and decodes one value.
func (s *Session) ReadForaCustomOnce(ctx context.Context, char device.Characteristic) (codec.VendorCustom, error) {
	raw, err := s.commandThenRead(ctx, char)
	if err != nil {
		return codec.VendorCustom{}, err
	}
	return codec.ParseForaCustom(raw), nil
}

// ReadAcareCustomOnce sends the read command when the characteristic is writable,
// then reads and decodes one value.
func (s *Session) ReadAcareCustomOnce(ctx context.Context, char device.Characteristic) (codec.VendorCustom, error) {
	raw, err := s.commandThenRead(ctx, char)
	if err != nil {
		return codec.VendorCustom{}, err
	}
	return codec.ParseVendor(raw), nil
}

func (s *Session) commandThenRead(ctx context.Context, char device.Characteristic) ([]byte, error) {
	if char == nil {
		return nil, notify.ErrNilCharacteristic
	}
	if device.CanWrite(char) {
		if err := char.Write(ctx, ReadCommand, withResponse(char)); err != nil {
			s.logger.WithFields(logrus.Fields{
				"char_uuid": char.UUID(),
				"error":     err,
			}).Warn("Failed to write read command")
		} else if err := sleep(ctx, s.opts.ReadCommandDelay); err != nil {
			return nil, err
		}
	}
	if !device.CanRead(char) {
		return nil, fmt.Errorf("characteristic does not support read: %w", device.ErrUnsupported)
	}
	raw, err := char.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", char.UUID(), device.NormalizeError(err))
	}
	return raw, nil
}

// withResponse prefers acknowledged writes when the characteristic offers them.
func withResponse(char device.Characteristic) bool {
	return char.Properties() != nil && char.Properties().Write() != nil
}

func readOnce(ctx context.Context, char device.Characteristic) ([]byte, error) {
	if char == nil {
		return nil, notify.ErrNilCharacteristic
	}
	raw, err := char.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", char.UUID(), device.NormalizeError(err))
	}
	return raw, nil
}

// IsUnsupported reports whether err means the characteristic cannot be read.
func IsUnsupported(err error) bool {
	return errors.Is(err, device.ErrUnsupported) || errors.Is(err, device.ErrNotSupported)
}
