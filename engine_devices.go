package authkit

import (
	"context"

	"github.com/zenith-platform/authkit/device"
)

// ListTrustedDevices returns the account's trusted devices, most recently
// used first.
func (e *Engine) ListTrustedDevices(ctx context.Context, accountID string) ([]*device.Device, error) {
	if e.devices == nil {
		return nil, nil
	}
	devices, err := e.devices.List(ctx, accountID)
	if err != nil {
		return nil, e.infra(ctx, "list devices", err)
	}
	return devices, nil
}

// RevokeDevice withdraws trust from one of the account's devices. Devices
// belonging to other accounts are invisible.
func (e *Engine) RevokeDevice(ctx context.Context, accountID, deviceID string) error {
	if e.devices == nil {
		return nil
	}
	devices, err := e.devices.List(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "list devices", err)
	}
	for _, d := range devices {
		if d.ID == deviceID {
			if err := e.devices.Revoke(ctx, deviceID); err != nil {
				return e.infra(ctx, "revoke device", err)
			}
			e.emit(ctx, SecurityEvent{
				EventType: EventDeviceRevoked,
				AccountID: accountID,
				Success:   true,
				Metadata:  map[string]string{"device_id": deviceID},
			})
			return nil
		}
	}
	return nil
}

// RevokeAllDevices withdraws trust from every device the account has
// registered and returns how many there were.
func (e *Engine) RevokeAllDevices(ctx context.Context, accountID string) (int, error) {
	if e.devices == nil {
		return 0, nil
	}
	n, err := e.devices.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, e.infra(ctx, "revoke devices", err)
	}
	if n > 0 {
		e.emit(ctx, SecurityEvent{
			EventType: EventDeviceRevoked,
			AccountID: accountID,
			Success:   true,
			Metadata:  map[string]string{"scope": "all"},
		})
	}
	return n, nil
}
