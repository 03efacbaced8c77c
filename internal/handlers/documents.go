package handlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"syscall"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
)

var errPrivateAddress = errors.New("refusing to fetch from a private or loopback address")

// newFetchClient returns the client used for document URLs. Unless
// allowPrivate is set, connections to loopback, private, link-local and
// unspecified addresses are refused after DNS resolution, which also covers
// redirects.
func newFetchClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer.Control = publicOnly
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: 60 * time.Second, Transport: transport}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s", errPrivateAddress, ip)
	}
	return nil
}

// downloadDocument fetches a paper from a public URL.
func (h *Handler) downloadDocument(r *http.Request, rawURL string) (models.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return models.Document{}, fmt.Errorf("invalid document url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("failed to download document: HTTP %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return models.Document{}, err
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = "document"
	}
	return models.Document{
		Filename: filename,
		MIMEType: models.DetectMIME(filename, resp.Header.Get("Content-Type"), data),
		Data:     data,
	}, nil
}
