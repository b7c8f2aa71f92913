package apicommon

// ApiBasePathV1 is the base path for version 1 of the API.
const ApiBasePathV1 = "api/v1"

// UpdatesApiPath is the sub path that starts updates.
const UpdatesApiPath = "updates"

// BundleApiPath is the sub path that manages the active bundle.
const BundleApiPath = "bundle"

// QueryKeyRestart requests a restart after a bundle operation succeeded.
const QueryKeyRestart = "restart"

// QueryKeyFolder selects the checkout folder of the git transport.
const QueryKeyFolder = "folder"

// TransportHTTP and TransportOCI name the archive transports of an ArchiveUpdateRequest.
const (
	TransportHTTP = "http"
	TransportOCI  = "oci"
)
