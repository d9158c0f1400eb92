// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package endpoint

import "fmt"

// Client is a logical endpoint identity. Even values are producers
// (feeding the engine), odd values consumers.
type Client uint32

const (
	Hsic1Prod Client = iota
	Hsic1Cons
	Hsic2Prod
	Hsic2Cons
	Hsic3Prod
	Hsic3Cons
	Hsic4Prod
	Hsic4Cons
	Hsic5Prod
	Hsic5Cons
	Wlan1Prod
	Wlan1Cons
	A5WlanAmpduProd
	Wlan2Cons
	_
	Wlan3Cons
	_
	Wlan4Cons
	UsbProd
	UsbCons
	Usb2Prod
	Usb2Cons
	Usb3Prod
	Usb3Cons
	Usb4Prod
	Usb4Cons
	UcUsbProd
	UsbDplCons
	A2EmbeddedProd
	A2EmbeddedCons
	A2TetheredProd
	A2TetheredCons
	AppsLanProd
	AppsLanCons
	AppsWanProd
	AppsWanCons
	AppsCmdProd
	A5LanWanCons
	OduProd
	OduEmbCons
	_
	OduTethCons
	MhiProd
	MhiCons
	MemcpyDmaSyncProd
	MemcpyDmaSyncCons
	MemcpyDmaAsyncProd
	MemcpyDmaAsyncCons
	EthernetProd
	EthernetCons
	Q6LanProd
	Q6LanCons
	Q6WanProd
	Q6WanCons
	Q6CmdProd
	Q6DunCons
	Q6DecompProd
	Q6DecompCons
	Q6Decomp2Prod
	Q6Decomp2Cons
	_
	Q6LteWifiAggrCons
	TestProd
	TestCons
	Test1Prod
	Test1Cons
	Test2Prod
	Test2Cons
	Test3Prod
	Test3Cons
	Test4Prod
	Test4Cons
	_
	DummyCons
	NClient
)

var clientNames = [NClient]string{
	Hsic1Prod:          "HSIC1_PROD",
	Hsic1Cons:          "HSIC1_CONS",
	Hsic2Prod:          "HSIC2_PROD",
	Hsic2Cons:          "HSIC2_CONS",
	Hsic3Prod:          "HSIC3_PROD",
	Hsic3Cons:          "HSIC3_CONS",
	Hsic4Prod:          "HSIC4_PROD",
	Hsic4Cons:          "HSIC4_CONS",
	Hsic5Prod:          "HSIC5_PROD",
	Hsic5Cons:          "HSIC5_CONS",
	Wlan1Prod:          "WLAN1_PROD",
	Wlan1Cons:          "WLAN1_CONS",
	A5WlanAmpduProd:    "A5_WLAN_AMPDU_PROD",
	Wlan2Cons:          "WLAN2_CONS",
	Wlan3Cons:          "WLAN3_CONS",
	Wlan4Cons:          "WLAN4_CONS",
	UsbProd:            "USB_PROD",
	UsbCons:            "USB_CONS",
	Usb2Prod:           "USB2_PROD",
	Usb2Cons:           "USB2_CONS",
	Usb3Prod:           "USB3_PROD",
	Usb3Cons:           "USB3_CONS",
	Usb4Prod:           "USB4_PROD",
	Usb4Cons:           "USB4_CONS",
	UcUsbProd:          "UC_USB_PROD",
	UsbDplCons:         "USB_DPL_CONS",
	A2EmbeddedProd:     "A2_EMBEDDED_PROD",
	A2EmbeddedCons:     "A2_EMBEDDED_CONS",
	A2TetheredProd:     "A2_TETHERED_PROD",
	A2TetheredCons:     "A2_TETHERED_CONS",
	AppsLanProd:        "APPS_LAN_PROD",
	AppsLanCons:        "APPS_LAN_CONS",
	AppsWanProd:        "APPS_WAN_PROD",
	AppsWanCons:        "APPS_WAN_CONS",
	AppsCmdProd:        "APPS_CMD_PROD",
	A5LanWanCons:       "A5_LAN_WAN_CONS",
	OduProd:            "ODU_PROD",
	OduEmbCons:         "ODU_EMB_CONS",
	OduTethCons:        "ODU_TETH_CONS",
	MhiProd:            "MHI_PROD",
	MhiCons:            "MHI_CONS",
	MemcpyDmaSyncProd:  "MEMCPY_DMA_SYNC_PROD",
	MemcpyDmaSyncCons:  "MEMCPY_DMA_SYNC_CONS",
	MemcpyDmaAsyncProd: "MEMCPY_DMA_ASYNC_PROD",
	MemcpyDmaAsyncCons: "MEMCPY_DMA_ASYNC_CONS",
	EthernetProd:       "ETHERNET_PROD",
	EthernetCons:       "ETHERNET_CONS",
	Q6LanProd:          "Q6_LAN_PROD",
	Q6LanCons:          "Q6_LAN_CONS",
	Q6WanProd:          "Q6_WAN_PROD",
	Q6WanCons:          "Q6_WAN_CONS",
	Q6CmdProd:          "Q6_CMD_PROD",
	Q6DunCons:          "Q6_DUN_CONS",
	Q6DecompProd:       "Q6_DECOMP_PROD",
	Q6DecompCons:       "Q6_DECOMP_CONS",
	Q6Decomp2Prod:      "Q6_DECOMP2_PROD",
	Q6Decomp2Cons:      "Q6_DECOMP2_CONS",
	Q6LteWifiAggrCons:  "Q6_LTE_WIFI_AGGR_CONS",
	TestProd:           "TEST_PROD",
	TestCons:           "TEST_CONS",
	Test1Prod:          "TEST1_PROD",
	Test1Cons:          "TEST1_CONS",
	Test2Prod:          "TEST2_PROD",
	Test2Cons:          "TEST2_CONS",
	Test3Prod:          "TEST3_PROD",
	Test3Cons:          "TEST3_CONS",
	Test4Prod:          "TEST4_PROD",
	Test4Cons:          "TEST4_CONS",
	DummyCons:          "DUMMY_CONS",
}

func (c Client) String() string {
	if c < NClient && clientNames[c] != "" {
		return clientNames[c]
	}
	return fmt.Sprintf("client(%d)", uint32(c))
}

func (c Client) IsProducer() bool { return c&1 == 0 }
func (c Client) IsConsumer() bool { return !c.IsProducer() }

func (c Client) IsModemConsumer() bool { return c == Q6LanCons || c == Q6WanCons }

func (c Client) IsModemProducer() bool {
	return c == Q6LanProd || c == Q6WanProd || c == Q6CmdProd
}

func (c Client) IsModem() bool { return c.IsModemConsumer() || c.IsModemProducer() }

// IsApConsumer reports whether c is drained by the application
// processor; these pipes follow the engine's power state.
func (c Client) IsApConsumer() bool { return c == AppsLanCons || c == AppsWanCons }

// Deaggregation is only wired on the first four pipes.
func SupportsDeaggr(pipe uint32) bool { return pipe <= 3 }
