package models

import (
	"fmt"
	"strings"
)

// Conference is the target venue. It only changes prompt framing.
type Conference string

const (
	ConferenceNeurIPS Conference = "NeurIPS"
	ConferenceICML    Conference = "ICML"
	ConferenceICLR    Conference = "ICLR"
	ConferenceCVPR    Conference = "CVPR"
	ConferenceICCV    Conference = "ICCV"
	ConferenceECCV    Conference = "ECCV"
	ConferenceACL     Conference = "ACL"
	ConferenceEMNLP   Conference = "EMNLP"
	ConferenceNAACL   Conference = "NAACL"
	ConferenceAAAI    Conference = "AAAI"
	ConferenceIJCAI   Conference = "IJCAI"
	ConferenceKDD     Conference = "KDD"

	DefaultConference = ConferenceNeurIPS
)

var conferences = []Conference{
	ConferenceNeurIPS, ConferenceICML, ConferenceICLR,
	ConferenceCVPR, ConferenceICCV, ConferenceECCV,
	ConferenceACL, ConferenceEMNLP, ConferenceNAACL,
	ConferenceAAAI, ConferenceIJCAI, ConferenceKDD,
}

// Conferences lists the supported venues.
func Conferences() []Conference {
	out := make([]Conference, len(conferences))
	copy(out, conferences)
	return out
}

// ParseConference matches a venue name case-insensitively. An empty name
// yields the default venue.
func ParseConference(name string) (Conference, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultConference, nil
	}
	for _, c := range conferences {
		if strings.EqualFold(string(c), name) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported conference %q", name)
}

// Valid reports whether c is a known venue.
func (c Conference) Valid() bool {
	for _, known := range conferences {
		if c == known {
			return true
		}
	}
	return false
}
