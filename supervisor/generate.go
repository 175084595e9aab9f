package supervisor

//go:generate mockgen -destination=mock_lifecycle_test.go -package=supervisor go.pact.im/x/qhttpd/hook Lifecycle
