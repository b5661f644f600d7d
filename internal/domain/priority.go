package domain

import "fmt"

// Impact enumerates business impact levels.
type Impact string

const (
	ImpactCritico Impact = "CRITICO"
	ImpactAlto    Impact = "ALTO"
	ImpactMedio   Impact = "MEDIO"
	ImpactBajo    Impact = "BAJO"
)

// Urgency enumerates resolution urgency levels.
type Urgency string

const (
	UrgencyCritica Urgency = "CRITICA"
	UrgencyAlta    Urgency = "ALTA"
	UrgencyMedia   Urgency = "MEDIA"
	UrgencyBaja    Urgency = "BAJA"
)

// Priority is always derived from impact and urgency, never set directly.
type Priority string

const (
	PriorityCritica Priority = "CRITICA"
	PriorityAlta    Priority = "ALTA"
	PriorityMedia   Priority = "MEDIA"
	PriorityBaja    Priority = "BAJA"
)

func (i Impact) IsValid() bool {
	switch i {
	case ImpactCritico, ImpactAlto, ImpactMedio, ImpactBajo:
		return true
	}
	return false
}

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyCritica, UrgencyAlta, UrgencyMedia, UrgencyBaja:
		return true
	}
	return false
}

// priorityMatrix is the canonical impact × urgency table. It is applied
// uniformly at creation, configuration and every edit.
var priorityMatrix = map[Impact]map[Urgency]Priority{
	ImpactCritico: {
		UrgencyCritica: PriorityCritica,
		UrgencyAlta:    PriorityCritica,
		UrgencyMedia:   PriorityAlta,
		UrgencyBaja:    PriorityAlta,
	},
	ImpactAlto: {
		UrgencyCritica: PriorityCritica,
		UrgencyAlta:    PriorityAlta,
		UrgencyMedia:   PriorityAlta,
		UrgencyBaja:    PriorityMedia,
	},
	ImpactMedio: {
		UrgencyCritica: PriorityAlta,
		UrgencyAlta:    PriorityMedia,
		UrgencyMedia:   PriorityMedia,
		UrgencyBaja:    PriorityBaja,
	},
	ImpactBajo: {
		UrgencyCritica: PriorityMedia,
		UrgencyAlta:    PriorityMedia,
		UrgencyMedia:   PriorityBaja,
		UrgencyBaja:    PriorityBaja,
	},
}

// CalculatePriority derives the priority for a valid impact/urgency pair.
func CalculatePriority(impact Impact, urgency Urgency) (Priority, error) {
	if !impact.IsValid() {
		return "", fmt.Errorf("invalid impact: %s", impact)
	}
	if !urgency.IsValid() {
		return "", fmt.Errorf("invalid urgency: %s", urgency)
	}
	return priorityMatrix[impact][urgency], nil
}
