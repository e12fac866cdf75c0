/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tigge

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cw3e/nwpcycle/internal/cycle"
)

// Kind selects one of the request templates.
type Kind string

const (
	PerturbedPressure Kind = "gep_pl"
	PerturbedSurface  Kind = "gep_sl"
	PerturbedStatic   Kind = "gep_st"
	ControlPressure   Kind = "gec_pl"
	ControlSurface    Kind = "gec_sl"
)

const (
	pressureLevels  = "200/250/300/500/700/850/925/1000"
	pressureParams  = "130/131/132/133/156"
	pertSurfParams  = "134/151/165/166/167/168/172/235/228039/228139/228144"
	ctrlSurfParams  = "134/151/165/166/167/168/235/228039/228139/228144"
	staticParams    = "228002"
	staticStep      = "0"
	defaultGrid     = "0.5/0.5"
	ncepOriginCode  = "kwbc"
	tiggeClass      = "ti"
	tiggeDataset    = "tigge"
	productionExpID = "prod"
)

// Kinds lists the templates requested for every cycle. Control kinds go to
// separate files because the control member takes no number field.
func Kinds(control bool) []Kind {
	kinds := []Kind{PerturbedPressure, PerturbedSurface, PerturbedStatic}
	if control {
		kinds = append(kinds, ControlPressure, ControlSurface)
	}
	return kinds
}

// Request is one MARS-style retrieval and the file it is saved to.
type Request struct {
	Kind   Kind
	Init   time.Time
	Target string
	Body   map[string]string
}

// NewRequest fills the template for kind at init. members is the number of
// perturbations combined into one file and is ignored for control kinds.
func NewRequest(kind Kind, init time.Time, leads []int, members int, root string) (Request, error) {
	if len(leads) == 0 {
		return Request{}, fmt.Errorf("%w: no forecast hours", cycle.ErrInvalidForecastWindow)
	}
	init = init.UTC()

	body := map[string]string{
		"class":   tiggeClass,
		"dataset": tiggeDataset,
		"date":    init.Format("2006-01-02"),
		"expver":  productionExpID,
		"grid":    defaultGrid,
		"origin":  ncepOriginCode,
		"step":    cycle.JoinLeads(leads, "/"),
		"time":    init.Format("15:04:05"),
	}

	perturbed := kind == PerturbedPressure || kind == PerturbedSurface || kind == PerturbedStatic
	if perturbed {
		if members < 1 {
			return Request{}, fmt.Errorf("ensemble size %d must be at least 1", members)
		}
		body["number"] = memberList(members)
		body["type"] = "pf"
	} else {
		body["type"] = "cf"
	}

	var suffix string
	switch kind {
	case PerturbedPressure, ControlPressure:
		body["levelist"] = pressureLevels
		body["levtype"] = "pl"
		body["param"] = pressureParams
		suffix = "pl"
	case PerturbedSurface:
		body["levtype"] = "sfc"
		body["param"] = pertSurfParams
		suffix = "sl"
	case ControlSurface:
		body["levtype"] = "sfc"
		body["param"] = ctrlSurfParams
		suffix = "sl"
	case PerturbedStatic:
		body["levtype"] = "sfc"
		body["param"] = staticParams
		body["step"] = staticStep
		suffix = "st"
	default:
		return Request{}, fmt.Errorf("unknown TIGGE request kind %q", kind)
	}

	member := "gec"
	if perturbed {
		member = "geps_1-" + strconv.Itoa(members)
	}
	name := fmt.Sprintf("TIGGE_%s_%s_zh_%s_fcst_hrs_0-%d.grib",
		member, suffix, init.Format("2006-01-02_15"), leads[len(leads)-1])

	return Request{
		Kind:   kind,
		Init:   init,
		Target: filepath.Join(root, init.Format("20060102"), name),
		Body:   body,
	}, nil
}

// memberList returns "1/2/.../n".
func memberList(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(i + 1)
	}
	return strings.Join(parts, "/")
}
