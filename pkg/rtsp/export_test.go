package rtsp

import "github.com/pion/rtcp"

// ParseSDPForTest exposes parseSDP to external tests.
func (c *Client) ParseSDPForTest(body []byte) error { return c.parseSDP(body) }

// HandleSenderReportForTest exposes handleSenderReport to external tests.
func (c *Client) HandleSenderReportForTest(sr *rtcp.SenderReport) { c.handleSenderReport(sr) }
