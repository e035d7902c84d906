package notifications

import (
	"fmt"
	"strings"
)

// ChannelKind is the scope of a channel name.
type ChannelKind string

const (
	KindOrder      ChannelKind = "order"
	KindUser       ChannelKind = "user"
	KindRestaurant ChannelKind = "restaurant"
	KindDriver     ChannelKind = "driver"
	KindSystem     ChannelKind = "system"
)

// SystemChannel receives system-wide broadcasts. Every gateway session joins it.
const SystemChannel = "system:notifications"

func OrderChannel(orderID string) string   { return string(KindOrder) + ":" + orderID }
func UserChannel(userID string) string     { return string(KindUser) + ":" + userID }
func RestaurantChannel(id string) string   { return string(KindRestaurant) + ":" + id }
func DriverChannel(driverID string) string { return string(KindDriver) + ":" + driverID }

// ParseChannel splits a channel name into its kind and id, rejecting unknown
// kinds and empty ids.
func ParseChannel(channel string) (ChannelKind, string, error) {
	kind, id, ok := strings.Cut(channel, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid channel %q: expected <kind>:<id>", channel)
	}
	switch k := ChannelKind(kind); k {
	case KindOrder, KindUser, KindRestaurant, KindDriver, KindSystem:
		return k, id, nil
	default:
		return "", "", fmt.Errorf("invalid channel %q: unknown kind %q", channel, kind)
	}
}

// kindOf labels metrics; unparseable names fall into "other".
func kindOf(channel string) string {
	kind, _, err := ParseChannel(channel)
	if err != nil {
		return "other"
	}
	return string(kind)
}
