package invoke

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaInvoker invokes AWS Lambda functions with the RequestResponse
// invocation type. target is a function name or ARN.
type LambdaInvoker struct {
	client *lambda.Client
}

// NewLambdaInvoker creates a Lambda invoker. endpoint overrides the
// service URL (LocalStack); empty keeps the AWS default.
func NewLambdaInvoker(awsCfg aws.Config, endpoint string) *LambdaInvoker {
	client := lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &LambdaInvoker{client: client}
}

// Invoke calls the function and waits for its response.
func (l *LambdaInvoker) Invoke(ctx context.Context, target string, payload []byte) (*Response, error) {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(target),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Payload:       out.Payload,
		FunctionError: aws.ToString(out.FunctionError),
		StatusCode:    int(out.StatusCode),
	}, nil
}
