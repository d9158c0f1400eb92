// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package ipa

import "github.com/platinasystems/ipa/internal/sim"

// Simulated returns the Hardware of a simulated engine.
func Simulated(s *sim.Hardware) Hardware {
	return Hardware{
		Regs:        s.Regs,
		DMA:         s.DMA,
		Channels:    s.GSI,
		Clock:       s.Clock,
		Memory:      s.Memory,
		Imem:        s.Imem,
		Config:      s.Cfg,
		PeerValid:   s.PeerValid,
		PeerEnabled: s.PeerOn,
		Wake:        s.Wake,
	}
}
