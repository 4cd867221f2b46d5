package types

// BuilderKind discriminates where builds run
type BuilderKind string

const (
	// BuilderServer runs builds on a long-lived managed server.
	BuilderServer BuilderKind = "Server"
	// BuilderUrl runs builds on a fixed agent outside the inventory.
	BuilderUrl BuilderKind = "Url"
	// BuilderAws provisions an ephemeral EC2 instance per build.
	BuilderAws BuilderKind = "Aws"
	// BuilderHetzner provisions an ephemeral Hetzner server per build.
	BuilderHetzner BuilderKind = "Hetzner"
)

// ServerBuilderConfig points at a managed server.
type ServerBuilderConfig struct {
	ServerID string `json:"server_id,omitempty" toml:"server_id,omitempty"`
}

// UrlBuilderConfig points at a fixed agent address.
type UrlBuilderConfig struct {
	Address string `json:"address,omitempty" toml:"address,omitempty"`
	Passkey string `json:"passkey,omitempty" toml:"passkey,omitempty"`
}

// AwsVolume maps one extra EBS volume onto a build instance.
type AwsVolume struct {
	DeviceName string `json:"device_name" toml:"device_name"`
	SizeGB     int32  `json:"size_gb" toml:"size_gb"`
	VolumeType string `json:"volume_type,omitempty" toml:"volume_type,omitempty"`
	IOPS       int32  `json:"iops,omitempty" toml:"iops,omitempty"`
	Throughput int32  `json:"throughput,omitempty" toml:"throughput,omitempty"`
}

// AwsBuilderConfig provisions an EC2 build instance.
type AwsBuilderConfig struct {
	Region           string      `json:"region,omitempty" toml:"region,omitempty"`
	InstanceType     string      `json:"instance_type,omitempty" toml:"instance_type,omitempty"`
	AmiID            string      `json:"ami_id,omitempty" toml:"ami_id,omitempty"`
	SubnetID         string      `json:"subnet_id,omitempty" toml:"subnet_id,omitempty"`
	SecurityGroupIDs []string    `json:"security_group_ids,omitempty" toml:"security_group_ids,omitempty"`
	KeyPairName      string      `json:"key_pair_name,omitempty" toml:"key_pair_name,omitempty"`
	AssignPublicIP   bool        `json:"assign_public_ip,omitempty" toml:"assign_public_ip,omitempty"`
	UsePublicIP      bool        `json:"use_public_ip,omitempty" toml:"use_public_ip,omitempty"`
	Port             int         `json:"port,omitempty" toml:"port,omitempty"`
	UseHTTPS         bool        `json:"use_https,omitempty" toml:"use_https,omitempty"`
	UserData         string      `json:"user_data,omitempty" toml:"user_data,omitempty"`
	Volumes          []AwsVolume `json:"volumes,omitempty" toml:"volumes,omitempty"`
}

// HetznerBuilderConfig provisions a Hetzner cloud build server.
type HetznerBuilderConfig struct {
	ServerType  string   `json:"server_type,omitempty" toml:"server_type,omitempty"`
	Image       string   `json:"image,omitempty" toml:"image,omitempty"`
	Location    string   `json:"location,omitempty" toml:"location,omitempty"`
	SSHKeys     []string `json:"ssh_keys,omitempty" toml:"ssh_keys,omitempty"`
	Port        int      `json:"port,omitempty" toml:"port,omitempty"`
	UseHTTPS    bool     `json:"use_https,omitempty" toml:"use_https,omitempty"`
	UsePublicIP bool     `json:"use_public_ip,omitempty" toml:"use_public_ip,omitempty"`
	UserData    string   `json:"user_data,omitempty" toml:"user_data,omitempty"`
}

// BuilderConfig is a tagged variant: Type selects which member applies.
type BuilderConfig struct {
	Type    BuilderKind          `json:"type" toml:"type"`
	Server  ServerBuilderConfig  `json:"server,omitempty" toml:"server,omitempty"`
	Url     UrlBuilderConfig     `json:"url,omitempty" toml:"url,omitempty"`
	Aws     AwsBuilderConfig     `json:"aws,omitempty" toml:"aws,omitempty"`
	Hetzner HetznerBuilderConfig `json:"hetzner,omitempty" toml:"hetzner,omitempty"`
}

// DefaultBuilderConfig returns the config a fresh builder starts from.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{Type: BuilderServer}
}

// DefaultPeripheryPort is where agents listen unless overridden.
const DefaultPeripheryPort = 8120
