package main

// Inverter represents a single PIKO inverter instance
type Inverter struct {
	Name     string
	Host     string
	Username string
	Password string
}
