/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package service

import (
	"context"
	"fmt"

	kardianos "github.com/kardianos/service"
)

// Config describes how our service should be installed.
type Config struct {
	Name        string
	DisplayName string
	Description string

	// Arguments are passed to our executable when the service manager starts
	// it, eg. "daemon run --config /path/to/config.yaml".
	Arguments []string
}

func (c Config) kardianos() *kardianos.Config {
	return &kardianos.Config{
		Name:        c.Name,
		DisplayName: c.DisplayName,
		Description: c.Description,
		Arguments:   c.Arguments,
	}
}

// Start implements kardianos service.Interface, running the Keeper in the
// background.
func (k *Keeper) Start(kardianos.Service) error {
	ctx, cancel := context.WithCancel(context.Background())

	k.mu.Lock()
	k.cancel = cancel
	k.done = make(chan struct{})
	done := k.done
	k.mu.Unlock()

	go func() {
		err := k.Run(ctx)

		k.mu.Lock()
		k.err = err
		k.mu.Unlock()

		close(done)
	}()

	return nil
}

// Stop implements kardianos service.Interface, killing the daemon and
// returning any error the Keeper stopped with.
func (k *Keeper) Stop(kardianos.Service) error {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	k.mu.Lock()
	defer k.mu.Unlock()

	return k.err
}

// New returns a kardianos service that runs the given Keeper.
func New(k *Keeper, c Config) (kardianos.Service, error) {
	return kardianos.New(k, c.kardianos())
}

// Control performs one of kardianos.ControlAction (install, uninstall, start,
// stop, restart) on the system service for the given Keeper.
func Control(k *Keeper, c Config, action string) error {
	svc, err := New(k, c)
	if err != nil {
		return err
	}

	if err = kardianos.Control(svc, action); err != nil {
		return fmt.Errorf("%s %s service: %w", action, c.Name, err)
	}

	return nil
}

// Run runs the Keeper under the service manager, or interactively if not
// started by one, until told to stop.
func Run(k *Keeper, c Config) error {
	svc, err := New(k, c)
	if err != nil {
		return err
	}

	return svc.Run()
}
