// Package cloudwatch emits live benchmark progress metrics to AWS CloudWatch.
// Emission is best-effort and asynchronous: a slow or failing metrics backend
// must never stall the benchmark.
package cloudwatch

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Publisher sends progress metrics to a CloudWatch namespace, dimensioned by
// hostname and target name.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string
	hostname  string
}

// New loads the default AWS config for the region and builds a publisher.
func New(ctx context.Context, region, namespace string) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Publisher{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: namespace,
		hostname:  hostname,
	}, nil
}

// PublishProgress emits one progress window. The PutMetricData call runs in
// its own goroutine with a bounded timeout; failures are logged and dropped.
func (p *Publisher) PublishProgress(target string, qps, p50MS, p99MS float64, tcpConns int) {
	now := time.Now()
	dims := []types.Dimension{
		{Name: aws.String("Host"), Value: aws.String(p.hostname)},
		{Name: aws.String("Target"), Value: aws.String(target)},
	}

	metricData := []types.MetricDatum{
		{
			MetricName: aws.String("OpsPerSecond"),
			Value:      aws.Float64(qps),
			Unit:       types.StandardUnitCountSecond,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String("LatencyP50"),
			Value:      aws.Float64(p50MS),
			Unit:       types.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String("LatencyP99"),
			Value:      aws.Float64(p99MS),
			Unit:       types.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String("EstablishedTCPConnections"),
			Value:      aws.Float64(float64(tcpConns)),
			Unit:       types.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  aws.Time(now),
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: metricData,
		})
		if err != nil {
			log.Printf("Warning: failed to emit CloudWatch metrics: %v", err)
		}
	}()
}
