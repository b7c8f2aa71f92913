package constants

// OciImageTitle is the annotation that carries the file name of an OCI layer.
const OciImageTitle = "org.opencontainers.image.title"

// BundleFormatAnnotation carries the format hint of a bundle layer, e.g. "tar.gz" or "zip".
const BundleFormatAnnotation = "com.unbasical.bundleota.format"

// DefaultRestartDelayMillis is the delay between a committed update and the scheduled restart.
const DefaultRestartDelayMillis = 300

// DefaultGitFolderName is the checkout folder used by the git transport when none is configured.
const DefaultGitFolderName = "ota-bundle"

// InvalidURLMessage is reported when an archive update is started without a source URL.
const InvalidURLMessage = "Please give a valid URL!"
