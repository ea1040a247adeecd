// Setup and configuration tool for MeshAdv LoRa/GPS HATs on Raspberry Pi.
//
// This tool installs the meshtasticd daemon from one of three release
// channels (beta, alpha, daily), enables the hardware interfaces the HAT
// needs (SPI, I2C, UART and the GPS PPS line), manages the daemon's config.d
// directory and its systemd service, and covers optional extras like Avahi
// auto-discovery and the Meshtastic Python CLI.
//
// It can be driven through a GTK3-based GUI, an interactive shell, or plain
// subcommands for scripted use.
package hatsetup
