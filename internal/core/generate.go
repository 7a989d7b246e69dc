package core

//go:generate mockgen -destination=mocks/mock_core.go -package=mocks . TokenProvisioner,TransportClient,MediaDevices
