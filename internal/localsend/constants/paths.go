package constants

const (
	UploadPath    = "/api/localsend/v2/upload"
	PreuploadPath = "/api/localsend/v2/prepare-upload"
	CancelPath    = "/api/localsend/v2/cancel"
	InfoPath      = "/api/localsend/v2/info"
	RegisterPath  = "/api/localsend/v2/register"
)

const (
	ProtocolVersion = "2.1"

	DefaultPort           = 53317
	DefaultMulticastGroup = "224.0.0.167"
	DefaultMulticastPort  = 53317

	DeviceModel = "Linux"
	DeviceType  = "headless"
)

const (
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"
)
