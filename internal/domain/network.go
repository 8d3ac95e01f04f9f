package domain

import "errors"

// MobileNetwork is a mobile-money operator a payout can be delivered through
type MobileNetwork struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Code    string `json:"code" yaml:"code"`
	Country string `json:"country" yaml:"country"`
}

// Validate ensures the network entry is usable
func (n *MobileNetwork) Validate() error {
	if n.ID <= 0 {
		return errors.New("network ID must be positive")
	}
	if n.Name == "" {
		return errors.New("network name cannot be empty")
	}
	if n.Code == "" {
		return errors.New("network code cannot be empty")
	}
	if n.Country == "" {
		return errors.New("network country cannot be empty")
	}
	return nil
}
