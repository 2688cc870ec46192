package sdk

// Version is the SDK release reported in the X-Sdk-Client header.
const Version = "1.4.0"

// clientIdentity is the value of the SDK identity header.
func clientIdentity() string {
	return "boxoffice-go/" + Version
}
