package builder

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/komodohq/komodo/pkg/errs"
	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/periphery"
	"github.com/komodohq/komodo/pkg/types"
)

func (m *Manager) ec2Client(ctx context.Context, region string) (*ec2.Client, error) {
	if region == "" {
		region = m.cfg.Aws.DefaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if m.cfg.Aws.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.cfg.Aws.AccessKeyID, m.cfg.Aws.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Provider("load aws config", err)
	}
	return ec2.NewFromConfig(awsCfg), nil
}

func (m *Manager) provisionAws(ctx context.Context, build *types.Build, version types.Version, cfg types.AwsBuilderConfig) (*periphery.Client, *Cleanup, error) {
	client, err := m.ec2Client(ctx, cfg.Region)
	if err != nil {
		return nil, nil, err
	}

	timer := metrics.NewTimer()
	name := instanceName(build, version)

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(cfg.AmiID),
		InstanceType: ec2types.InstanceType(cfg.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		NetworkInterfaces: []ec2types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(cfg.SubnetID),
			Groups:                   cfg.SecurityGroupIDs,
			AssociatePublicIpAddress: aws.Bool(cfg.AssignPublicIP),
		}},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags: []ec2types.Tag{{
				Key:   aws.String("Name"),
				Value: aws.String(name),
			}},
		}},
	}
	if cfg.KeyPairName != "" {
		input.KeyName = aws.String(cfg.KeyPairName)
	}
	if cfg.UserData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(cfg.UserData)))
	}
	for _, vol := range cfg.Volumes {
		ebs := &ec2types.EbsBlockDevice{
			VolumeSize:          aws.Int32(vol.SizeGB),
			DeleteOnTermination: aws.Bool(true),
		}
		if vol.VolumeType != "" {
			ebs.VolumeType = ec2types.VolumeType(vol.VolumeType)
		}
		if vol.IOPS > 0 {
			ebs.Iops = aws.Int32(vol.IOPS)
		}
		if vol.Throughput > 0 {
			ebs.Throughput = aws.Int32(vol.Throughput)
		}
		input.BlockDeviceMappings = append(input.BlockDeviceMappings, ec2types.BlockDeviceMapping{
			DeviceName: aws.String(vol.DeviceName),
			Ebs:        ebs,
		})
	}

	out, err := client.RunInstances(ctx, input)
	if err != nil {
		return nil, nil, errs.Provider("run ec2 instance", err)
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return nil, nil, errs.Newf(errs.KindProvider, "run ec2 instance", "no instance returned")
	}
	instanceID := *out.Instances[0].InstanceId
	cleanup := &Cleanup{
		Kind:       CleanupCloud,
		Provider:   "aws",
		InstanceID: instanceID,
		Region:     cfg.Region,
	}
	logger := log.WithTarget(string(types.KindBuild), build.ID)
	logger.Info().
		Str("instance_id", instanceID).Str("name", name).Msg("launched ec2 build instance")

	ip, err := m.awaitEc2Running(ctx, client, instanceID, cfg.UsePublicIP)
	if err != nil {
		// The instance exists; the caller still owes a TearDown.
		return nil, cleanup, err
	}

	agent := periphery.NewClient(agentAddress(ip, cfg.Port, cfg.UseHTTPS), m.cfg.Passkey)
	agentVersion, err := m.waitForAgent(ctx, agent)
	if err != nil {
		return nil, cleanup, err
	}
	metrics.BuilderProvisionDuration.WithLabelValues("aws").Observe(timer.Duration().Seconds())
	logger.Info().
		Str("instance_id", instanceID).Str("agent_version", agentVersion).Msg("builder agent reachable")
	return agent, cleanup, nil
}

// awaitEc2Running polls until the instance reports running, then returns
// its IP.
func (m *Manager) awaitEc2Running(ctx context.Context, client *ec2.Client, instanceID string, usePublicIP bool) (string, error) {
	for attempt := 0; attempt < statePollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", errs.Provider("await ec2 running", ctx.Err())
		case <-time.After(statePollInterval):
		}

		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			continue
		}
		if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
			continue
		}
		instance := out.Reservations[0].Instances[0]
		if instance.State == nil || instance.State.Name != ec2types.InstanceStateNameRunning {
			continue
		}
		if usePublicIP {
			if instance.PublicIpAddress != nil {
				return *instance.PublicIpAddress, nil
			}
			continue
		}
		if instance.PrivateIpAddress != nil {
			return *instance.PrivateIpAddress, nil
		}
	}
	return "", errs.Newf(errs.KindProvider, "await ec2 running",
		"instance %s did not reach running state in %s", instanceID,
		time.Duration(statePollAttempts)*statePollInterval)
}

func (m *Manager) terminateAws(ctx context.Context, cleanup *Cleanup) error {
	client, err := m.ec2Client(ctx, cleanup.Region)
	if err != nil {
		return err
	}
	_, err = client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{cleanup.InstanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", cleanup.InstanceID, err)
	}
	return nil
}
