package localsend

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/0w0mewo/localsendgs/internal/localsend/constants"
	lserrors "github.com/0w0mewo/localsendgs/internal/localsend/errors"
	"github.com/0w0mewo/localsendgs/internal/models"
	"github.com/gofiber/fiber/v2"
)

const DefaultClientTimeout = 10 * time.Second

// Client performs the outbound protocol calls. Every call uses its own
// agent; nothing is pooled or retried.
type Client struct {
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{timeout: timeout}
}

func (cl *Client) newAgent(method, address string, port int, protocol, path string) (*fiber.Agent, error) {
	if protocol == "" {
		protocol = constants.ProtocolHTTPS
	}

	agent := fiber.AcquireAgent()

	req := agent.Request()
	req.Header.SetMethod(method)
	req.URI().SetScheme(protocol)
	req.URI().SetHost(net.JoinHostPort(address, strconv.Itoa(port)))
	req.URI().SetPath(path)

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return nil, err
	}

	// peers present self-signed certificates
	agent.InsecureSkipVerify()
	agent.Timeout(cl.timeout)

	return agent, nil
}

// RegisterDeviceAt announces device to the peer listening at address:port.
// Any transport failure or non-2xx answer wraps ErrRegistration.
func (cl *Client) RegisterDeviceAt(address string, port int, protocol string, device models.Device) error {
	agent, err := cl.newAgent(fiber.MethodPost, address, port, protocol, constants.RegisterPath)
	if err != nil {
		return fmt.Errorf("register at %s: %w: %w", address, lserrors.ErrRegistration, err)
	}
	agent.JSON(device)

	status, _, errs := agent.Bytes()
	if len(errs) != 0 {
		return fmt.Errorf("register at %s: %w: %w", address, lserrors.ErrRegistration, errs[0])
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("register at %s: status %d: %w", address, status, lserrors.ErrRegistration)
	}

	return nil
}

// SendCancelRequest asks the peer at address:port to drop sessionId. A
// non-200 answer is returned as the matching protocol error.
func (cl *Client) SendCancelRequest(address string, port int, protocol, sessionId string) error {
	agent, err := cl.newAgent(fiber.MethodPost, address, port, protocol, constants.CancelPath)
	if err != nil {
		return fmt.Errorf("cancel at %s: %w", address, err)
	}
	agent.Request().URI().QueryArgs().Set("sessionId", sessionId)

	status, _, errs := agent.Bytes()
	if len(errs) != 0 {
		return fmt.Errorf("cancel at %s: %w", address, errs[0])
	}
	if status != fiber.StatusOK {
		return fmt.Errorf("cancel at %s: status %d: %w", address, status, lserrors.ParseError(status))
	}

	return nil
}

func (cl *Client) GetDeviceInfo(address string, port int, protocol string) (models.Device, error) {
	agent, err := cl.newAgent(fiber.MethodGet, address, port, protocol, constants.InfoPath)
	if err != nil {
		return models.Device{}, err
	}

	status, b, errs := agent.Bytes()
	if len(errs) != 0 {
		return models.Device{}, errs[0]
	}
	if err := lserrors.ParseError(status); err != nil {
		return models.Device{}, err
	}

	var res models.Device
	if err := json.Unmarshal(b, &res); err != nil {
		return models.Device{}, err
	}
	res.IP = address

	return res, nil
}
